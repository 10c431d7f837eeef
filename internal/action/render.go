package action

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Render produces the page script for t evaluated in the main frame
// IFrame steps render the frame-relative script of the step they wrap
func Render(t ActionType) string {
	return Visit[string](t, renderer{})
}

// RenderInFrame produces the script for t evaluated inside a sub-frame
// Input injects its text through the page helper instead of focusing
func RenderInFrame(t ActionType) string {
	return Visit[string](t, renderer{inFrame: true})
}

// Describe returns the human readable description of t
func Describe(t ActionType) string {
	return Visit[string](t, describer{})
}

// AccessibilityLabel returns the short spoken label of t
func AccessibilityLabel(t ActionType) string {
	return Visit[string](t, labeler{})
}

// Query renders the expression selecting the first element matching selector
func Query(selector string) string {
	return "document.querySelector(" + jsString(selector) + ")"
}

type renderer struct {
	inFrame bool
}

func (r renderer) Click(t Click) string {
	return "click(" + Query(t.Path) + ")"
}

func (r renderer) Input(t Input) string {
	if r.inFrame {
		text := base64.StdEncoding.EncodeToString([]byte(t.Text))
		return "input(" + Query(t.Path) + ", " + jsString(text) + ")"
	}
	return Query(t.Path) + ".focus()"
}

func (r renderer) IFrame(t IFrame) string {
	return RenderInFrame(t.Action)
}

func (r renderer) GetResult(t GetResult) string {
	return "getData(" + Query(t.Path) + ")"
}

func (r renderer) URLChange(URLChange) string { return "" }

func (r renderer) UploadFile(t UploadFile) string {
	return r.Click(Click{Path: t.Path})
}

func (r renderer) OpenURL(OpenURL) string { return "" }

type describer struct{}

func (describer) Click(t Click) string { return "Click element at " + t.Path }

func (describer) Input(t Input) string { return fmt.Sprintf("Type %s at %s", t.Text, t.Path) }

func (describer) IFrame(t IFrame) string {
	return "In iframe at " + t.Path + " " + Describe(t.Action)
}

func (describer) GetResult(t GetResult) string { return "Get content at " + t.Path }

func (describer) URLChange(URLChange) string { return "URL change" }

func (describer) UploadFile(t UploadFile) string {
	return fmt.Sprintf("Upload %s at %s", filepath.Base(t.File.Path()), t.Path)
}

func (describer) OpenURL(t OpenURL) string {
	mode := "Desktop"
	if t.Mobile {
		mode = "Mobile"
	}
	return fmt.Sprintf("Open %s (%s)", t.URL, mode)
}

type labeler struct{}

func (labeler) Click(Click) string             { return "Click element" }
func (labeler) Input(t Input) string           { return "Input '" + t.Text + "'" }
func (labeler) IFrame(t IFrame) string         { return AccessibilityLabel(t.Action) }
func (labeler) GetResult(GetResult) string     { return "Get content" }
func (labeler) URLChange(URLChange) string     { return "URL Change" }
func (labeler) UploadFile(t UploadFile) string { return "Upload " + filepath.Base(t.File.Path()) }
func (labeler) OpenURL(t OpenURL) string       { return "Open " + t.URL }

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
