package linkedin

import (
	"encoding/json"
	"fmt"
)

// Entity is one classified item of a response's included array.
// It is exactly one of CandidatePost, VideoAsset or OtherEntity.
type Entity interface {
	URN() string
	isEntity()
}

// CandidatePost is a search result embedding a media object
type CandidatePost struct {
	EntityURN         string
	UpdateURN         string
	Title             string
	NavigationURL     string
	HasEmbeddedObject bool
}

// VideoAsset is a video-bearing media entity from the updates lookup
type VideoAsset struct {
	EntityURN  string
	DurationMs int64
	StreamURL  string
	Size       int64
	Width      int
	Height     int
	MediaType  string
}

// OtherEntity is anything the crawler ignores
type OtherEntity struct {
	EntityURN string
	Type      string
}

func (c CandidatePost) URN() string { return c.EntityURN }
func (v VideoAsset) URN() string    { return v.EntityURN }
func (o OtherEntity) URN() string   { return o.EntityURN }

func (CandidatePost) isEntity() {}
func (VideoAsset) isEntity()    {}
func (OtherEntity) isEntity()   {}

// Classify decodes one included entity into its variant. Entities carrying
// an embedded object are candidates; entities carrying a thumbnail are videos.
func Classify(raw json.RawMessage) (Entity, error) {
	var e rawEntity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}

	switch {
	case len(e.EntityEmbeddedObject) > 0:
		c := CandidatePost{
			EntityURN:         e.EntityURN,
			NavigationURL:     e.NavigationURL,
			HasEmbeddedObject: true,
		}
		if e.TargetUnion != nil {
			c.UpdateURN = e.TargetUnion.UpdateV2URN
		}
		if e.Title != nil {
			c.Title = e.Title.Text
		}
		return c, nil

	case len(e.Thumbnail) > 0:
		v := VideoAsset{
			EntityURN:  e.EntityURN,
			DurationMs: int64(e.Duration),
		}
		if len(e.ProgressiveStreams) > 0 {
			ps := e.ProgressiveStreams[0]
			v.Size, v.Width, v.Height, v.MediaType = ps.Size, ps.Width, ps.Height, ps.MediaType
			if len(ps.StreamingLocations) > 0 {
				v.StreamURL = ps.StreamingLocations[0].URL
			}
		}
		return v, nil

	default:
		return OtherEntity{EntityURN: e.EntityURN, Type: e.Type}, nil
	}
}

// ClassifyAll classifies every entity, skipping ones that fail to decode
func ClassifyAll(included []json.RawMessage) []Entity {
	out := make([]Entity, 0, len(included))
	for _, raw := range included {
		e, err := Classify(raw)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Candidates returns the candidate posts among included entities
func Candidates(included []json.RawMessage) []CandidatePost {
	var out []CandidatePost
	for _, e := range ClassifyAll(included) {
		if c, ok := e.(CandidatePost); ok {
			out = append(out, c)
		}
	}
	return out
}

// Videos returns the video assets among included entities
func Videos(included []json.RawMessage) []VideoAsset {
	var out []VideoAsset
	for _, e := range ClassifyAll(included) {
		if v, ok := e.(VideoAsset); ok {
			out = append(out, v)
		}
	}
	return out
}
