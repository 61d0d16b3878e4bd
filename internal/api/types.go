package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MediaKind selects which result field a variant reads.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// ID is a server identifier that may arrive as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Timestamp accepts RFC3339 strings, "YYYY-MM-DD HH:MM:SS" strings, and
// numeric epochs in seconds or milliseconds.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		parsed, err := parseTimestamp(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	value, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = epochToTime(value)
	return nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	if number, err := strconv.ParseFloat(value, 64); err == nil {
		return epochToTime(number), nil
	}
	return time.Time{}, fmt.Errorf("timestamp: unsupported format %q", value)
}

func epochToTime(value float64) time.Time {
	if value > 1e12 {
		return time.UnixMilli(int64(value)).UTC()
	}
	sec := int64(value)
	nsec := int64((value - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// Media is a produced artifact reference.
type Media struct {
	URL string `json:"url"`
}

// SubmitRequest describes one generation request. Count is the number of
// results requested; the server may return fewer job ids.
type SubmitRequest struct {
	Prompt         string            `validate:"required,max=4000"`
	Count          int               `validate:"min=1,max=8"`
	Model          string            `validate:"omitempty,max=128"`
	AspectRatio    string            `validate:"omitempty,oneof=1:1 16:9 9:16 4:3 3:4 3:2 2:3 21:9"`
	NegativePrompt string            `validate:"omitempty,max=4000"`
	SourceImageURL string            `validate:"omitempty,url"`
	Extra          map[string]string `validate:"-"`
}

// SubmitResponse is the server's answer to a submission.
type SubmitResponse struct {
	ID        ID     `json:"id"`
	JobID     ID     `json:"job_id"`
	JobIDList []ID   `json:"job_ids"`
	Redirect  string `json:"redirect,omitempty"`
	Image     *Media `json:"image,omitempty"`
	Video     *Media `json:"video,omitempty"`
	GalleryID ID     `json:"gallery_id"`
	Error     string `json:"error,omitempty"`
}

// JobIDs normalizes the three id shapes to a list, preferring job_ids.
func (r *SubmitResponse) JobIDs() []string {
	if r == nil {
		return nil
	}
	var ids []string
	seen := map[string]struct{}{}
	for _, id := range r.JobIDList {
		if id == "" {
			continue
		}
		if _, ok := seen[string(id)]; ok {
			continue
		}
		seen[string(id)] = struct{}{}
		ids = append(ids, string(id))
	}
	if len(ids) > 0 {
		return ids
	}
	if r.JobID != "" {
		return []string{string(r.JobID)}
	}
	if r.ID != "" {
		return []string{string(r.ID)}
	}
	return nil
}

// ResultURL returns an immediate artifact URL, if the server produced one synchronously.
func (r *SubmitResponse) ResultURL(kind MediaKind) string {
	if r == nil {
		return ""
	}
	return pickMedia(kind, r.Image, r.Video, "", "")
}

// JobStatus is a single status poll response.
type JobStatus struct {
	Done      bool     `json:"done"`
	Failed    bool     `json:"failed"`
	Error     string   `json:"error,omitempty"`
	Progress  *float64 `json:"progress,omitempty"`
	Stage     string   `json:"stage,omitempty"`
	Image     *Media   `json:"image,omitempty"`
	Video     *Media   `json:"video,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	VideoURL  string   `json:"video_url,omitempty"`
	GalleryID ID       `json:"gallery_id"`
}

// ResultURL returns the artifact location for kind, checking the nested
// object first and the flat field second.
func (s *JobStatus) ResultURL(kind MediaKind) string {
	if s == nil {
		return ""
	}
	return pickMedia(kind, s.Image, s.Video, s.ImageURL, s.VideoURL)
}

func pickMedia(kind MediaKind, image, video *Media, imageURL, videoURL string) string {
	switch kind {
	case KindVideo:
		if video != nil && strings.TrimSpace(video.URL) != "" {
			return strings.TrimSpace(video.URL)
		}
		return strings.TrimSpace(videoURL)
	default:
		if image != nil && strings.TrimSpace(image.URL) != "" {
			return strings.TrimSpace(image.URL)
		}
		return strings.TrimSpace(imageURL)
	}
}

// CompletedJob is one row of the recently-completed listing.
type CompletedJob struct {
	JobID          ID        `json:"job_id"`
	Status         string    `json:"status"`
	ImageURL       string    `json:"image_url,omitempty"`
	VideoURL       string    `json:"video_url,omitempty"`
	GalleryID      ID        `json:"gallery_id"`
	CreatedAt      Timestamp `json:"created_at"`
	GenerationType string    `json:"generation_type,omitempty"`
}

// ResultURL returns the artifact location for kind.
func (j CompletedJob) ResultURL(kind MediaKind) string {
	return pickMedia(kind, nil, nil, j.ImageURL, j.VideoURL)
}

// CompletedListing is the recently-completed listing response.
type CompletedListing struct {
	Success bool           `json:"success"`
	Jobs    []CompletedJob `json:"jobs"`
}

type actionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
