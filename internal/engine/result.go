package engine

import "image"

// Kind tells text results from image results
type Kind int

const (
	KindText Kind = iota
	KindImage
)

func (k Kind) String() string {
	if k == KindImage {
		return "image"
	}
	return "text"
}

// Result is one value extracted by a GetResult step
type Result struct {
	Text   string
	Image  image.Image
	Source string // URL the image was fetched from
}

// Kind reports whether the result carries text or an image
func (r Result) Kind() Kind {
	if r.Image != nil {
		return KindImage
	}
	return KindText
}

// Results is the ordered output of a run
type Results []Result

// Texts returns the text results in order
func (rs Results) Texts() []string {
	var out []string
	for _, r := range rs {
		if r.Kind() == KindText {
			out = append(out, r.Text)
		}
	}
	return out
}

// Images returns the image results in order
func (rs Results) Images() []image.Image {
	var out []image.Image
	for _, r := range rs {
		if r.Kind() == KindImage {
			out = append(out, r.Image)
		}
	}
	return out
}
