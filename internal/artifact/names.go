package artifact

import "fmt"

// Well-known artifact filenames within a job's directory.
const (
	DOMName           = "dom.json"
	TraceName         = "trace.har"
	ScreenshotName    = "screenshot.png"
	SemanticModelName = "semantic_model.json"
	APICatalogName    = "api_catalog.json"
	GeneratedTestName = "generated_test.json"
	GherkinName       = "generated_test.feature"
	LastRunName       = "last_run.json"
)

// RunReportName returns the per-run report filename.
func RunReportName(runID string) string {
	return fmt.Sprintf("test_report_%s.json", runID)
}

// DOM is the body of the dom.json artifact.
type DOM struct {
	OuterHTML string `json:"outer_html"`
}
