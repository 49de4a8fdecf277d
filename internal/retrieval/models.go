package retrieval

// Request models
type AddDocumentRequest struct {
	Documents []Document  `json:"documents,omitempty"`
	Source    string      `json:"source,omitempty"`
	Metadata  interface{} `json:"metadata,omitempty"`
}

type Document struct {
	Content  string `json:"content"`
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`
}

type SearchRequest struct {
	Query     string `json:"query"`
	StyleHint string `json:"style_hint,omitempty"`
	TopKText  int    `json:"top_k_text,omitempty"`
	TopKImage int    `json:"top_k_image,omitempty"`
}

type DeleteRequest struct {
	Source string `json:"source,omitempty"`
	ByDoc  bool   `json:"by_doc,omitempty"`
}

// Response models
type SearchResponse struct {
	Results []RankedResult `json:"results"`
}

// RankedResult is one candidate surfaced by the retrieval backend,
// already ordered by score on the remote side.
type RankedResult struct {
	ResultID string  `json:"result_id"`
	Modality string  `json:"modality"` // "text" or "image"
	Score    float64 `json:"score"`
	Content  string  `json:"content,omitempty"`
}
