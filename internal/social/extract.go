package social

import (
	"encoding/json"
	"fmt"
)

// The follower-count endpoints respond with a handful of slightly
// different body shapes depending on host and API version. Instead of
// sniffing the payload ad hoc, each known shape gets a typed extractor
// and extractors are tried in order until one parses.
type countExtractor struct {
	name  string
	parse func(data []byte) (int, bool)
}

var countExtractors = []countExtractor{
	{name: "flat", parse: extractFlatCount},
	{name: "data", parse: extractDataCount},
	{name: "nested_data", parse: extractNestedDataCount},
	{name: "array", parse: extractArrayCount},
}

// ExtractFollowerCount parses a follower count out of an upstream
// response body, trying each known shape in order.
func ExtractFollowerCount(data []byte) (int, error) {
	for _, extractor := range countExtractors {
		if count, ok := extractor.parse(data); ok {
			return count, nil
		}
	}
	return 0, fmt.Errorf("no known response shape matched (%d bytes)", len(data))
}

type countBody struct {
	FollowersCount *int `json:"followers_count"`
}

// {"followers_count": 123}
func extractFlatCount(data []byte) (int, bool) {
	var body countBody
	if err := json.Unmarshal(data, &body); err != nil {
		return 0, false
	}
	return validCount(body.FollowersCount)
}

// {"data": {"followers_count": 123}}
func extractDataCount(data []byte) (int, bool) {
	var body struct {
		Data countBody `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return 0, false
	}
	return validCount(body.Data.FollowersCount)
}

// {"data": {"data": {"followers_count": 123}}}
func extractNestedDataCount(data []byte) (int, bool) {
	var body struct {
		Data struct {
			Data countBody `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return 0, false
	}
	return validCount(body.Data.Data.FollowersCount)
}

// [{"followers_count": 123}]
func extractArrayCount(data []byte) (int, bool) {
	var body []countBody
	if err := json.Unmarshal(data, &body); err != nil || len(body) == 0 {
		return 0, false
	}
	return validCount(body[0].FollowersCount)
}

func validCount(count *int) (int, bool) {
	if count == nil || *count < 0 {
		return 0, false
	}
	return *count, true
}
