package parser

import (
	"encoding/json"
	"strings"

	"github.com/ternarybob/inkwell/internal/common"
	"github.com/ternarybob/inkwell/internal/models"
)

var (
	outlineKeyAliases = map[string]string{
		"seoKeywords":      "seo_keywords",
		"keywords":         "seo_keywords",
		"metaDescription":  "meta_description",
		"suggestedImages":  "suggested_images",
		"imageSuggestions": "suggested_images",
		"images":           "suggested_images",
		"headings":         "sections",
		"intro":            "introduction",
	}

	sectionKeyAliases = map[string]string{
		"title":        "heading",
		"subHeadings":  "subheadings",
		"sub_headings": "subheadings",
		"subsections":  "subheadings",
		"points":       "subheadings",
	}

	blogKeyAliases = map[string]string{
		"body":            "content",
		"markdown":        "content",
		"article":         "content",
		"metaDescription": "meta_description",
	}
)

// ParseOutline extracts an outline object. It returns None for nil input,
// when no JSON object can be located, or when the object has no sections or
// a section heading is blank.
func ParseOutline(raw *string) Parsed[models.Outline] {
	if raw == nil {
		return None[models.Outline]()
	}

	obj, ok := extractObject(*raw, "outline")
	if !ok {
		return None[models.Outline]()
	}
	obj = unwrap(obj, "outline", "sections")
	renameKeys(obj, outlineKeyAliases)
	normalizeSections(obj)

	var outline models.Outline
	if !decodeValidated("outline", OutlineSchema, obj, &outline, *raw) {
		return None[models.Outline]()
	}

	outline.Title = strings.TrimSpace(outline.Title)
	outline.SEOKeywords = appendTrimmed(nil, outline.SEOKeywords)
	outline.SuggestedImages = appendTrimmed(nil, outline.SuggestedImages)
	for i := range outline.Sections {
		outline.Sections[i].Heading = strings.TrimSpace(outline.Sections[i].Heading)
		if outline.Sections[i].Heading == "" {
			common.GetLogger().Warn().
				Int("section", i).
				Str("response_preview", preview(*raw)).
				Msg("Outline section has a blank heading")
			return None[models.Outline]()
		}
		outline.Sections[i].Subheadings = appendTrimmed(nil, outline.Sections[i].Subheadings)
	}
	return Ok(outline)
}

// ParseBlog extracts a blog object. Blank content yields None. WordCount is
// computed from the markdown content; HTML is left for the renderer.
func ParseBlog(raw *string) Parsed[models.Blog] {
	if raw == nil {
		return None[models.Blog]()
	}

	obj, ok := extractObject(*raw, "blog")
	if !ok {
		return None[models.Blog]()
	}
	obj = unwrap(obj, "blog", "content")
	renameKeys(obj, blogKeyAliases)

	var blog models.Blog
	if !decodeValidated("blog", BlogSchema, obj, &blog, *raw) {
		return None[models.Blog]()
	}

	blog.Title = strings.TrimSpace(blog.Title)
	blog.Content = strings.TrimSpace(blog.Content)
	if blog.Content == "" {
		common.GetLogger().Warn().
			Str("response_preview", preview(*raw)).
			Msg("Blog content is blank")
		return None[models.Blog]()
	}
	blog.WordCount = len(strings.Fields(blog.Content))
	return Ok(blog)
}

func extractObject(raw, stage string) (map[string]interface{}, bool) {
	logger := common.GetLogger()

	candidate, ok := extractBalanced(stripCodeFence(raw), '{', '}')
	if !ok {
		logger.Warn().
			Str("stage", stage).
			Str("response_preview", preview(raw)).
			Msg("No JSON object found in model response")
		return nil, false
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		logger.Warn().
			Err(err).
			Str("stage", stage).
			Str("response_preview", preview(raw)).
			Msg("Failed to parse JSON object from model response")
		return nil, false
	}
	return obj, true
}

func decodeValidated(stage string, schema map[string]interface{}, obj map[string]interface{}, out interface{}, raw string) bool {
	logger := common.GetLogger()

	if err := validateAgainst(stage, schema, obj); err != nil {
		logger.Warn().
			Err(err).
			Str("stage", stage).
			Str("response_preview", preview(raw)).
			Msg("Model response failed schema validation")
		return false
	}

	data, err := json.Marshal(obj)
	if err != nil {
		logger.Warn().Err(err).Str("stage", stage).Msg("Failed to re-encode model response")
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.Warn().Err(err).Str("stage", stage).Msg("Failed to decode model response")
		return false
	}
	return true
}

// unwrap returns obj[key] when the model nested the expected object one level
// deeper, e.g. {"outline": {"sections": [...]}}
func unwrap(obj map[string]interface{}, key, marker string) map[string]interface{} {
	if _, ok := obj[marker]; ok {
		return obj
	}
	if inner, ok := obj[key].(map[string]interface{}); ok {
		return inner
	}
	return obj
}

// renameKeys moves aliased keys to their canonical name without overwriting
// a canonical key that is already present
func renameKeys(obj map[string]interface{}, aliases map[string]string) {
	for alias, canonical := range aliases {
		v, ok := obj[alias]
		if !ok {
			continue
		}
		if _, exists := obj[canonical]; !exists {
			obj[canonical] = v
		}
		delete(obj, alias)
	}
}

// normalizeSections accepts plain-string sections and object subheadings
func normalizeSections(obj map[string]interface{}) {
	sections, ok := obj["sections"].([]interface{})
	if !ok {
		return
	}

	for i, s := range sections {
		switch sec := s.(type) {
		case string:
			sections[i] = map[string]interface{}{"heading": sec}
		case map[string]interface{}:
			renameKeys(sec, sectionKeyAliases)
			if subs, ok := sec["subheadings"].([]interface{}); ok {
				for j, sub := range subs {
					if m, ok := sub.(map[string]interface{}); ok {
						if h, ok := m["heading"].(string); ok {
							subs[j] = h
						} else if t, ok := m["title"].(string); ok {
							subs[j] = t
						}
					}
				}
			}
		}
	}
}
