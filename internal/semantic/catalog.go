package semantic

import "encoding/json"

// Endpoint is one observed request/response pair from the extraction trace.
type Endpoint struct {
	Method             string  `json:"method"`
	URL                string  `json:"url"`
	Status             int     `json:"status"`
	SampleRequestBody  *string `json:"sampleRequestBody"`
	SampleResponseBody *string `json:"sampleResponseBody"`
}

// APICatalog summarizes the network traffic captured during extraction.
type APICatalog struct {
	Endpoints []Endpoint `json:"endpoints"`
}

// harLog mirrors the subset of the HAR format the catalog needs.
type harLog struct {
	Log struct {
		Entries []struct {
			Request struct {
				Method   string `json:"method"`
				URL      string `json:"url"`
				PostData *struct {
					Text *string `json:"text"`
				} `json:"postData"`
			} `json:"request"`
			Response struct {
				Status  int `json:"status"`
				Content *struct {
					Text *string `json:"text"`
				} `json:"content"`
			} `json:"response"`
		} `json:"entries"`
	} `json:"log"`
}

// BuildAPICatalog folds a HAR trace into an endpoint catalog. A missing or
// unparsable trace yields an empty catalog, never an error: the trace is
// supplementary context, not required input.
func BuildAPICatalog(harTrace []byte) APICatalog {
	catalog := APICatalog{Endpoints: []Endpoint{}}
	if len(harTrace) == 0 {
		return catalog
	}

	var har harLog
	if err := json.Unmarshal(harTrace, &har); err != nil {
		return catalog
	}

	for _, entry := range har.Log.Entries {
		ep := Endpoint{
			Method: entry.Request.Method,
			URL:    entry.Request.URL,
			Status: entry.Response.Status,
		}
		if entry.Request.PostData != nil {
			ep.SampleRequestBody = entry.Request.PostData.Text
		}
		if entry.Response.Content != nil {
			ep.SampleResponseBody = entry.Response.Content.Text
		}
		catalog.Endpoints = append(catalog.Endpoints, ep)
	}
	return catalog
}
