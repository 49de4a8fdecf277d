package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/docsense/backend/internal/config"
	"github.com/docsense/backend/internal/database"
	"github.com/docsense/backend/internal/retrieval"
	"github.com/docsense/backend/pkg/utils"
	"github.com/go-redis/redis/v8"
	"github.com/gocolly/colly/v2"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// StudyPageConfig represents one reference page of course material
type StudyPageConfig struct {
	Title    string
	URL      string
	Priority int // Higher priority pages are processed first
}

// Section is one heading-delimited chunk of a reference page
type Section struct {
	Title   string
	Content string
	Anchor  string
}

// CorpusSeeder scrapes reference pages and uploads them to the retrieval index
type CorpusSeeder struct {
	collector        *colly.Collector
	retrievalService *retrieval.Service
	logger           *logrus.Logger
	processed        map[string]bool
	errors           []error
}

var (
	// Core study-reference pages for the question-answering corpus
	StudyPages = []StudyPageConfig{
		{Title: "Derivative", Priority: 10, URL: "https://en.wikipedia.org/wiki/Derivative"},
		{Title: "Integral", Priority: 10, URL: "https://en.wikipedia.org/wiki/Integral"},
		{Title: "Limit_(mathematics)", Priority: 9, URL: "https://en.wikipedia.org/wiki/Limit_(mathematics)"},
		{Title: "Linear_algebra", Priority: 9, URL: "https://en.wikipedia.org/wiki/Linear_algebra"},
		{Title: "Matrix_(mathematics)", Priority: 8, URL: "https://en.wikipedia.org/wiki/Matrix_(mathematics)"},
		{Title: "Eigenvalues_and_eigenvectors", Priority: 8, URL: "https://en.wikipedia.org/wiki/Eigenvalues_and_eigenvectors"},
		{Title: "Probability", Priority: 8, URL: "https://en.wikipedia.org/wiki/Probability"},
		{Title: "Statistics", Priority: 7, URL: "https://en.wikipedia.org/wiki/Statistics"},
		{Title: "Normal_distribution", Priority: 7, URL: "https://en.wikipedia.org/wiki/Normal_distribution"},
		{Title: "Bayes%27_theorem", Priority: 7, URL: "https://en.wikipedia.org/wiki/Bayes%27_theorem"},
		{Title: "Algorithm", Priority: 6, URL: "https://en.wikipedia.org/wiki/Algorithm"},
		{Title: "Data_structure", Priority: 6, URL: "https://en.wikipedia.org/wiki/Data_structure"},
		{Title: "Machine_learning", Priority: 6, URL: "https://en.wikipedia.org/wiki/Machine_learning"},
		{Title: "Neural_network", Priority: 5, URL: "https://en.wikipedia.org/wiki/Neural_network"},
		{Title: "Gradient_descent", Priority: 5, URL: "https://en.wikipedia.org/wiki/Gradient_descent"},
	}

	// Command line flags
	dryRun     = flag.Bool("dry-run", false, "Don't upload to the retrieval index, just print what would be uploaded")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	pageLimit  = flag.Int("limit", 0, "Limit number of pages to process (0 = all)")
	concurrent = flag.Int("concurrent", 2, "Number of concurrent requests")
	delay      = flag.Duration("delay", 2*time.Second, "Delay between requests")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.NewLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Info("Starting study corpus seeder...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	var retrievalService *retrieval.Service
	if !*dryRun {
		if err := cfg.ValidateRetrieval(); err != nil {
			logger.WithError(err).Fatal("Retrieval configuration validation failed")
		}

		retrievalClient := retrieval.NewClient(cfg.Retrieval.BaseURL, cfg.Retrieval.APIKey, logger)
		retrievalService = retrieval.NewService(retrievalClient, cfg.Retrieval.TopKText, cfg.Retrieval.TopKImage, logger)
	}

	seeder := NewCorpusSeeder(retrievalService, logger)

	ctx := context.Background()
	if err := seeder.SeedCorpus(ctx); err != nil {
		logger.WithError(err).Fatal("Corpus seeding failed")
	}

	if !*dryRun {
		flushSearchCache(ctx, cfg, logger)
	}

	logger.Info("Corpus seeding completed successfully!")
}

// flushSearchCache drops cached search results so freshly indexed
// content shows up immediately. Redis being unreachable is not fatal
// for a seeding run.
func flushSearchCache(ctx context.Context, cfg *config.Config, logger *logrus.Logger) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.WithError(err).Warn("Invalid Redis URL, skipping search cache flush")
		return
	}

	client := redis.NewClient(redisOpts)
	defer client.Close()

	cache := database.NewCache(client, logger)
	if err := cache.InvalidateSearchResults(ctx); err != nil {
		logger.WithError(err).Warn("Failed to flush search result cache")
		return
	}

	logger.Info("Search result cache flushed")
}

func NewCorpusSeeder(retrievalService *retrieval.Service, logger *logrus.Logger) *CorpusSeeder {
	c := colly.NewCollector(
		colly.UserAgent("DocsenseSeeder/1.0"),
	)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "en.wikipedia.org",
		Parallelism: *concurrent,
		Delay:       *delay,
	})

	c.SetRequestTimeout(30 * time.Second)

	return &CorpusSeeder{
		collector:        c,
		retrievalService: retrievalService,
		logger:           logger,
		processed:        make(map[string]bool),
		errors:           make([]error, 0),
	}
}

func (cs *CorpusSeeder) SeedCorpus(ctx context.Context) error {
	cs.logger.Info("Starting corpus seeding process...")

	pages := make([]StudyPageConfig, len(StudyPages))
	copy(pages, StudyPages)

	// Sort by priority (descending)
	for i := 0; i < len(pages)-1; i++ {
		for j := i + 1; j < len(pages); j++ {
			if pages[i].Priority < pages[j].Priority {
				pages[i], pages[j] = pages[j], pages[i]
			}
		}
	}

	if *pageLimit > 0 && *pageLimit < len(pages) {
		pages = pages[:*pageLimit]
		cs.logger.WithField("limit", *pageLimit).Info("Limited pages to process")
	}

	cs.logger.WithField("total_pages", len(pages)).Info("Processing reference pages")

	for i, page := range pages {
		cs.logger.WithFields(logrus.Fields{
			"page":     page.Title,
			"priority": page.Priority,
			"progress": fmt.Sprintf("%d/%d", i+1, len(pages)),
		}).Info("Processing page")

		if err := cs.processPage(ctx, page); err != nil {
			cs.logger.WithError(err).WithField("page", page.Title).Error("Failed to process page")
			cs.errors = append(cs.errors, fmt.Errorf("failed to process %s: %w", page.Title, err))
			continue
		}

		cs.processed[page.Title] = true

		time.Sleep(500 * time.Millisecond)
	}

	cs.logger.WithFields(logrus.Fields{
		"processed": len(cs.processed),
		"errors":    len(cs.errors),
	}).Info("Corpus seeding completed")

	if len(cs.errors) > 0 {
		for _, err := range cs.errors {
			cs.logger.WithError(err).Warn("Processing error")
		}
	}

	return nil
}

func (cs *CorpusSeeder) processPage(ctx context.Context, page StudyPageConfig) error {
	var content string
	var sections []Section
	var processingError error

	cs.collector.OnHTML("#mw-content-text", func(e *colly.HTMLElement) {
		content = cs.extractPageContent(e)
		sections = cs.extractSections(e)

		cs.logger.WithFields(logrus.Fields{
			"page":           page.Title,
			"content_length": len(content),
			"sections":       len(sections),
		}).Debug("Content extracted")
	})

	cs.collector.OnError(func(r *colly.Response, err error) {
		processingError = err
	})

	if err := cs.collector.Visit(page.URL); err != nil {
		return fmt.Errorf("failed to visit page: %w", err)
	}

	if processingError != nil {
		return fmt.Errorf("processing error: %w", processingError)
	}

	if content == "" {
		return fmt.Errorf("no content extracted from page")
	}

	if *dryRun {
		cs.logger.WithFields(logrus.Fields{
			"page":           page.Title,
			"content_length": len(content),
			"sections":       len(sections),
		}).Info("DRY RUN: Would upload content")
		return nil
	}

	if err := cs.retrievalService.AddStudyContent(ctx, page.Title, content, page.URL); err != nil {
		return fmt.Errorf("failed to upload main content: %w", err)
	}

	// Upload sections separately for better retrieval granularity
	for _, section := range sections {
		sectionTitle := fmt.Sprintf("%s/%s", page.Title, section.Title)
		if err := cs.retrievalService.AddStudyContent(ctx, sectionTitle, section.Content, page.URL+"#"+section.Anchor); err != nil {
			cs.logger.WithError(err).WithField("section", sectionTitle).Warn("Failed to upload section")
		}
	}

	return nil
}

func (cs *CorpusSeeder) extractPageContent(e *colly.HTMLElement) string {
	e.DOM.Find(".navbox, .infobox, .ambox, .toc, .printfooter, .catlinks").Remove()
	e.DOM.Find("#toc, .noprint, .mw-editsection, .reflist").Remove()

	text := strings.TrimSpace(e.DOM.Text())

	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")

	return text
}

func (cs *CorpusSeeder) extractSections(e *colly.HTMLElement) []Section {
	var sections []Section

	e.DOM.Find("h2, h3").Each(func(i int, h *goquery.Selection) {
		titleText := strings.TrimSpace(h.Find(".mw-headline").Text())
		if titleText == "" {
			return
		}

		anchor, _ := h.Find(".mw-headline").Attr("id")

		var content strings.Builder
		h.NextUntil("h2, h3").Each(func(j int, s *goquery.Selection) {
			if s.HasClass("navbox") || s.HasClass("ambox") {
				return
			}
			text := strings.TrimSpace(s.Text())
			if text != "" {
				content.WriteString(text + "\n")
			}
		})

		sectionContent := strings.TrimSpace(content.String())

		// Skip sections without substantial content
		if len(sectionContent) > 50 {
			sections = append(sections, Section{
				Title:   titleText,
				Content: sectionContent,
				Anchor:  anchor,
			})
		}
	})

	return sections
}
