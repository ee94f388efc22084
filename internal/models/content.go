package models

// TitleResult is the stored result of a completed title job
type TitleResult struct {
	Titles []string `json:"titles"`
}

// OutlineSection is one heading of an outline with its subheadings
type OutlineSection struct {
	Heading     string   `json:"heading"`
	Subheadings []string `json:"subheadings,omitempty"`
}

// Outline is the structured result of the outline stage
type Outline struct {
	Title           string           `json:"title"`
	Introduction    string           `json:"introduction,omitempty"`
	Sections        []OutlineSection `json:"sections"`
	Conclusion      string           `json:"conclusion,omitempty"`
	SEOKeywords     []string         `json:"seo_keywords,omitempty"`
	MetaDescription string           `json:"meta_description,omitempty"`
	SuggestedImages []string         `json:"suggested_images,omitempty"`
}

// Blog is the structured result of the blog stage.
// Content is markdown; HTML and WordCount are derived from it.
type Blog struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	HTML            string `json:"html,omitempty"`
	WordCount       int    `json:"word_count"`
	MetaDescription string `json:"meta_description,omitempty"`
}
