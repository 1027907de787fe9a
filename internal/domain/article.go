package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outlet identifies a known news outlet. The editorial context for known
// outlets is injected into analysis prompts so the model can account for
// how each outlet produces its editorial line.
type Outlet string

const (
	OutletLeMonde     Outlet = "Le Monde"
	OutletTheGuardian Outlet = "The Guardian"
	OutletLiberation  Outlet = "Libération"
)

var outletContexts = map[Outlet]string{
	OutletLeMonde: `Le Monde is a French daily newspaper. It publishes a daily ` +
		`editorial that is signed 'Le Monde'. Not signed because it represents the ` +
		`views of the entire newspaper, the editorial is typically written by one of ` +
		`the four editorial writers after a collective process of selecting and ` +
		`taking a stance on a current issue.`,
	OutletTheGuardian: `The Guardian is a British daily newspaper. It publishes two ` +
		`daily editorial pieces titled 'The Guardian view on...', which are both ` +
		`unsigned. Though written mainly by a single author, each piece is produced ` +
		`through a collaborative process involving other journalists, subject ` +
		`specialists, and the editor, so the final unsigned piece reflects a ` +
		`collective viewpoint rather than individual opinions.`,
	OutletLiberation: `Libération is a French daily newspaper. It publishes a daily ` +
		`editorial signed by a member of the editorial board (may be the director).`,
}

// Contextualize returns the editorial-process description for the outlet,
// or an empty string when the outlet is unknown.
func (o Outlet) Contextualize() string {
	return outletContexts[o]
}

// ArticleMetadata carries optional source information supplied at submission.
type ArticleMetadata struct {
	Outlet      Outlet     `json:"outlet,omitempty"`
	URL         string     `json:"url,omitempty"`
	Publisher   string     `json:"publisher,omitempty"`
	Language    string     `json:"language,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Article is the immutable input to one analysis run. It is created at
// submission and never mutated afterwards; stages read it but only ever
// write to the AnalysisContext.
type Article struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title,omitempty"`
	Lede        string          `json:"lede,omitempty"`
	Text        string          `json:"text"`
	Metadata    ArticleMetadata `json:"metadata"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Markdown renders the article the way it is presented to the model.
func (a *Article) Markdown() string {
	var sb strings.Builder
	if a.Title != "" {
		header := a.Title
		if a.Metadata.Outlet != "" {
			header = fmt.Sprintf("%s (%s)", a.Title, a.Metadata.Outlet)
		}
		sb.WriteString("# ")
		sb.WriteString(header)
		sb.WriteString("\n\n")
	}
	if a.Lede != "" {
		sb.WriteString("**")
		sb.WriteString(a.Lede)
		sb.WriteString("**\n\n")
	}
	sb.WriteString(a.Text)
	return sb.String()
}
