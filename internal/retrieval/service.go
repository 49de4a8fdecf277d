package retrieval

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Searcher is the contract the orchestrator consumes. Embedding, vector
// search and document fetch all live behind it.
type Searcher interface {
	Search(ctx context.Context, queryText, styleHint string) ([]RankedResult, error)
}

type Service struct {
	client    *Client
	logger    *logrus.Logger
	topKText  int
	topKImage int
}

func NewService(client *Client, topKText, topKImage int, logger *logrus.Logger) *Service {
	if topKText <= 0 {
		topKText = 5
	}
	if topKImage <= 0 {
		topKImage = 3
	}
	return &Service{
		client:    client,
		logger:    logger,
		topKText:  topKText,
		topKImage: topKImage,
	}
}

// Search fetches ranked candidates for a query. Result ordering comes
// from the retrieval backend and is passed through untouched.
func (s *Service) Search(ctx context.Context, queryText, styleHint string) ([]RankedResult, error) {
	req := SearchRequest{
		Query:     queryText,
		StyleHint: styleHint,
		TopKText:  s.topKText,
		TopKImage: s.topKImage,
	}

	response, err := s.client.SearchWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	return response.Results, nil
}

// AddStudyContent uploads one document of course material to the index
func (s *Service) AddStudyContent(ctx context.Context, title, content, sourceURL string) error {
	req := AddDocumentRequest{
		Documents: []Document{{
			Content:  content,
			FileName: title + ".txt",
			FileType: "text/plain",
		}},
		Source: fmt.Sprintf("study-content/%s", title),
		Metadata: map[string]interface{}{
			"title":      title,
			"source_url": sourceURL,
		},
	}

	return s.client.AddDocumentWithRetry(ctx, req)
}

// DeleteStudyContent removes all chunks uploaded under a title
func (s *Service) DeleteStudyContent(ctx context.Context, title string) error {
	req := DeleteRequest{
		Source: fmt.Sprintf("study-content/%s", title),
		ByDoc:  true,
	}

	return s.client.Delete(ctx, req)
}
