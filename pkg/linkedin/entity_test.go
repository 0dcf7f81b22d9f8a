package linkedin

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Entity
	}{
		{
			name: "candidate with update reference",
			raw:  `{"entityUrn":"urn:li:fsd:1","entityEmbeddedObject":{},"targetUnion":{"updateV2Urn":"urn:li:activity:1"},"title":{"text":"hello"}}`,
			want: CandidatePost{EntityURN: "urn:li:fsd:1", UpdateURN: "urn:li:activity:1", Title: "hello", HasEmbeddedObject: true},
		},
		{
			name: "embedded object present but null",
			raw:  `{"entityUrn":"urn:li:fsd:2","entityEmbeddedObject":null}`,
			want: CandidatePost{EntityURN: "urn:li:fsd:2", HasEmbeddedObject: true},
		},
		{
			name: "video with stream",
			raw: `{"entityUrn":"urn:li:video:3","thumbnail":{},"duration":12500,
				"progressiveStreams":[{"size":1024,"width":640,"height":360,"mediaType":"video/mp4",
				"streamingLocations":[{"url":"https://media.test/v.mp4"}]}]}`,
			want: VideoAsset{EntityURN: "urn:li:video:3", DurationMs: 12500, StreamURL: "https://media.test/v.mp4",
				Size: 1024, Width: 640, Height: 360, MediaType: "video/mp4"},
		},
		{
			name: "video without streams",
			raw:  `{"entityUrn":"urn:li:video:4","thumbnail":{},"duration":3000}`,
			want: VideoAsset{EntityURN: "urn:li:video:4", DurationMs: 3000},
		},
		{
			name: "other",
			raw:  `{"entityUrn":"urn:li:profile:5","$type":"com.linkedin.Profile"}`,
			want: OtherEntity{EntityURN: "urn:li:profile:5", Type: "com.linkedin.Profile"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyInvalid(t *testing.T) {
	_, err := Classify(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestCandidatesAndVideos(t *testing.T) {
	included := []json.RawMessage{
		json.RawMessage(`{"entityUrn":"a","entityEmbeddedObject":{},"targetUnion":{"updateV2Urn":"u1"}}`),
		json.RawMessage(`{"entityUrn":"b"}`),
		json.RawMessage(`"not an object"`),
		json.RawMessage(`{"entityUrn":"c","thumbnail":{},"duration":1000}`),
	}

	candidates := Candidates(included)
	require.Len(t, candidates, 1)
	assert.Equal(t, "u1", candidates[0].UpdateURN)

	videos := Videos(included)
	require.Len(t, videos, 1)
	assert.Equal(t, "c", videos[0].URN())

	assert.Len(t, ClassifyAll(included), 3)
}
