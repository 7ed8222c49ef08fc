package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kaptinlin/jsonrepair"
	"github.com/soundprediction/lorekeeper/pkg/types"
)

// Response is the JSON document the model must return. A missing or null
// list is malformed; an empty list is a valid answer. Blank names and types
// inside the lists are left for Rules.Apply to drop or reject.
type Response struct {
	Entities      []types.CandidateEntity       `json:"entities" validate:"required"`
	Relationships []types.CandidateRelationship `json:"relationships" validate:"required"`
}

var (
	validate  = validator.New(validator.WithRequiredStructEnabled())
	thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// cleanResponse strips reasoning tags and markdown fences around the JSON body.
func cleanResponse(raw string) string {
	s := strings.TrimSpace(thinkTags.ReplaceAllString(raw, ""))

	if start := strings.Index(s, "```"); start != -1 {
		body := s[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl != -1 {
			// Drop the info string, e.g. ```json
			if tag := strings.TrimSpace(body[:nl]); tag == "" || !strings.ContainsAny(tag, "{[") {
				body = body[nl+1:]
			}
		}
		if end := strings.LastIndex(body, "```"); end != -1 {
			body = body[:end]
		}
		s = strings.TrimSpace(body)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

// Parse decodes and validates a model answer. When repair is set, syntactically
// broken JSON gets one repair attempt before being declared malformed.
func Parse(raw string, repair bool) (*types.CandidateExtraction, error) {
	body := cleanResponse(raw)
	if body == "" {
		return nil, malformed(raw, errors.New("empty response"))
	}

	var resp Response
	err := json.Unmarshal([]byte(body), &resp)
	if err != nil && repair {
		fixed, rerr := jsonrepair.JSONRepair(body)
		if rerr == nil {
			err = json.Unmarshal([]byte(fixed), &resp)
		}
	}
	if err != nil {
		return nil, malformed(raw, fmt.Errorf("invalid JSON: %w", err))
	}

	if err := validate.Struct(&resp); err != nil {
		return nil, malformed(raw, fmt.Errorf("missing entities or relationships: %w", err))
	}

	return &types.CandidateExtraction{
		Entities:      resp.Entities,
		Relationships: resp.Relationships,
	}, nil
}
