// Package storage manages the downloads directory.
//
// Videos are streamed into a ".part" file next to their final name and
// renamed into place only once the copy succeeded, so a crashed or failed
// download never leaves a truncated ".mp4" behind. Leftover ".part" files
// and sidecars without a video are cleaned when a Manager is created.
//
// The Manager also indexes which media URNs are already on disk, read back
// from the metadata sidecars, so a resumed crawl can skip them.
//
//	manager, err := storage.NewManager("data/downloads")
//	if err != nil {
//	    return err
//	}
//	path := manager.NewVideoPath()
//	n, err := manager.SaveVideo(body, path)
package storage
