package models

// TitlePayload is the input of a title generation job
type TitlePayload struct {
	Keywords       []string `json:"keywords" validate:"required,min=1,dive,required"`
	Tone           string   `json:"tone" validate:"required"`
	TargetAudience string   `json:"targetAudience" validate:"required"`
	Count          int      `json:"count" validate:"min=1,max=20"`
}

// OutlinePayload is the input of an outline generation job.
// One is created per approved title.
type OutlinePayload struct {
	Title       string   `json:"title" validate:"required"`
	Keywords    []string `json:"keywords,omitempty"`
	Tone        string   `json:"tone,omitempty"`
	SourceJobID string   `json:"source_job_id,omitempty"` // Title job the title was approved from
}

// BlogPayload is the input of a blog generation job
type BlogPayload struct {
	Title       string   `json:"title" validate:"required"`
	Keywords    []string `json:"keywords,omitempty"`
	Tone        string   `json:"tone,omitempty"`
	Outline     Outline  `json:"outline" validate:"required"`
	SourceJobID string   `json:"source_job_id,omitempty"` // Outline job the outline came from
}
