// -----------------------------------------------------------------------
// EPUB Converter - extracts e-book archives into markdown chapters
// -----------------------------------------------------------------------

package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
)

// productCodePattern extracts the product code prefix from e-book filenames
var productCodePattern = regexp.MustCompile(`^(\d{6}-\d{2})`)

// EpubPayload is the convert task request
type EpubPayload struct {
	Path        string `json:"path"`
	ProductCode string `json:"product_code,omitempty"`
}

// EpubResult summarizes a completed conversion
type EpubResult struct {
	ProductCode string   `json:"product_code,omitempty"`
	DocumentID  string   `json:"document_id"`
	Chapters    int      `json:"chapters"`
	Images      []string `json:"images"`
}

// EpubProcessor converts EPUB archives to markdown documents
type EpubProcessor struct {
	documents interfaces.DocumentStorage
	logger    arbor.ILogger
}

// NewEpubProcessor creates the convert processor
func NewEpubProcessor(documents interfaces.DocumentStorage, logger arbor.ILogger) *EpubProcessor {
	return &EpubProcessor{
		documents: documents,
		logger:    logger,
	}
}

func (p *EpubProcessor) Type() string {
	return models.TaskTypeConvert
}

func (p *EpubProcessor) Validate(payload json.RawMessage) error {
	var req EpubPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}
	if req.Path == "" {
		return models.NewValidationError("path", "epub path is required")
	}
	if !strings.HasSuffix(strings.ToLower(req.Path), ".epub") {
		return models.NewValidationError("path", "file must have .epub extension")
	}
	return nil
}

func (p *EpubProcessor) Execute(ctx context.Context, task *models.Task) (json.RawMessage, error) {
	var req EpubPayload
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return nil, models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}

	productCode := req.ProductCode
	if productCode == "" {
		productCode = ProductCodeFromFilename(path.Base(req.Path))
	}

	reader, err := zip.OpenReader(req.Path)
	if err != nil {
		return nil, models.NewProcessingError("failed to open epub archive", false, err)
	}
	defer reader.Close()

	chapters, images, err := p.extractChapters(ctx, &reader.Reader)
	if err != nil {
		return nil, err
	}

	markdown := strings.Join(chapters, "\n\n")

	doc := &models.Document{
		TaskID:      task.ID,
		ProductCode: productCode,
		Kind:        models.DocumentKindMarkdown,
		Title:       path.Base(req.Path),
		Content:     markdown,
		ContentType: "text/markdown",
	}
	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return nil, models.NewProcessingError("failed to persist markdown document", true, err)
	}

	p.logger.Info().
		Str("task_id", task.ID).
		Str("product_code", productCode).
		Int("chapters", len(chapters)).
		Int("images", len(images)).
		Msg("EPUB converted")

	return json.Marshal(&EpubResult{
		ProductCode: productCode,
		DocumentID:  doc.ID,
		Chapters:    len(chapters),
		Images:      images,
	})
}

// extractChapters walks the OPF spine and converts each XHTML chapter to
// markdown in reading order
func (p *EpubProcessor) extractChapters(ctx context.Context, archive *zip.Reader) ([]string, []string, error) {
	files := make(map[string]*zip.File, len(archive.File))
	var images []string
	for _, f := range archive.File {
		files[f.Name] = f
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp":
			images = append(images, f.Name)
		}
	}

	opfPath, err := p.findOPF(files)
	if err != nil {
		return nil, nil, err
	}
	opfDir := path.Dir(opfPath)

	spine, err := p.readSpine(files, opfPath)
	if err != nil {
		return nil, nil, err
	}

	converter := md.NewConverter("", true, nil)
	var chapters []string

	for _, href := range spine {
		select {
		case <-ctx.Done():
			return nil, nil, models.NewProcessingError("conversion cancelled", false, ctx.Err())
		default:
		}

		chapterPath := href
		if opfDir != "." {
			chapterPath = path.Join(opfDir, href)
		}
		f, ok := files[chapterPath]
		if !ok {
			p.logger.Warn().Str("chapter", chapterPath).Msg("Spine entry missing from archive, skipping")
			continue
		}

		html, err := readZipFile(f)
		if err != nil {
			return nil, nil, models.NewProcessingError("failed to read chapter", false, err)
		}

		markdown, err := converter.ConvertString(string(html))
		if err != nil {
			p.logger.Warn().Err(err).Str("chapter", chapterPath).Msg("Chapter conversion failed, skipping")
			continue
		}
		if trimmed := strings.TrimSpace(markdown); trimmed != "" {
			chapters = append(chapters, trimmed)
		}
	}

	return chapters, images, nil
}

// findOPF locates the package document via META-INF/container.xml
func (p *EpubProcessor) findOPF(files map[string]*zip.File) (string, error) {
	container, ok := files["META-INF/container.xml"]
	if !ok {
		return "", models.NewProcessingError("epub missing META-INF/container.xml", false, nil)
	}

	data, err := readZipFile(container)
	if err != nil {
		return "", models.NewProcessingError("failed to read container.xml", false, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", models.NewProcessingError("failed to parse container.xml", false, err)
	}

	opfPath, _ := doc.Find("rootfile").First().Attr("full-path")
	if opfPath == "" {
		return "", models.NewProcessingError("container.xml has no rootfile entry", false, nil)
	}
	return opfPath, nil
}

// readSpine returns chapter hrefs in spine order from the OPF manifest
func (p *EpubProcessor) readSpine(files map[string]*zip.File, opfPath string) ([]string, error) {
	f, ok := files[opfPath]
	if !ok {
		return nil, models.NewProcessingError(fmt.Sprintf("epub missing package document %s", opfPath), false, nil)
	}

	data, err := readZipFile(f)
	if err != nil {
		return nil, models.NewProcessingError("failed to read package document", false, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewProcessingError("failed to parse package document", false, err)
	}

	manifest := make(map[string]string)
	doc.Find("manifest item").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		href, _ := s.Attr("href")
		if id != "" && href != "" {
			manifest[id] = href
		}
	})

	var spine []string
	doc.Find("spine itemref").Each(func(_ int, s *goquery.Selection) {
		idref, _ := s.Attr("idref")
		if href, ok := manifest[idref]; ok {
			spine = append(spine, href)
		}
	})

	if len(spine) == 0 {
		return nil, models.NewProcessingError("epub spine is empty", false, nil)
	}
	return spine, nil
}

// ProductCodeFromFilename extracts the leading product code, if present
func ProductCodeFromFilename(filename string) string {
	if m := productCodePattern.FindStringSubmatch(filename); m != nil {
		return m[1]
	}
	return ""
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
