// Package prompts renders the system and user messages sent to the
// feedback generator.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/pavelanni/reflector/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

// Kind names one message template.
type Kind string

const (
	FeedbackSystem   Kind = "feedback_system"
	FeedbackUser     Kind = "feedback_user"
	FollowUpSystem   Kind = "followup_system"
	FollowUpUser     Kind = "followup_user"
	CompletionSystem Kind = "completion_system"
	CompletionUser   Kind = "completion_user"
)

var kinds = []Kind{FeedbackSystem, FeedbackUser, FollowUpSystem, FollowUpUser, CompletionSystem, CompletionUser}

var componentDescriptions = map[model.Component]string{
	model.ComponentMetacognition: "Metacognition involves students' awareness and understanding of their own learning processes, including planning, monitoring, and evaluating their learning strategies.",
	model.ComponentStrategy:      "Learning strategies refer to the specific techniques and methods students use to acquire, organize, and retain information effectively.",
	model.ComponentMotivation:    "Motivation encompasses students' intrinsic drive, self-efficacy, interest, and engagement with the learning material.",
	model.ComponentContent:       "Content understanding involves students' comprehension and ability to connect new information with existing knowledge.",
	model.ComponentManagement:    "Management refers to students' ability to organize their time, resources, and learning environment effectively.",
}

// Data is the template input shared by all message kinds.
type Data struct {
	Week                 int
	Component            model.Component
	ComponentDescription string
	Question             string
	Answer               string
	Language             string
}

// Messages is a rendered system/user pair.
type Messages struct {
	System string
	User   string
}

var loadTemplates = sync.OnceValues(func() (map[Kind]*template.Template, error) {
	return parse(templateFS)
})

func parse(fsys fs.FS) (map[Kind]*template.Template, error) {
	out := make(map[Kind]*template.Template, len(kinds))
	for _, k := range kinds {
		file := "templates/" + string(k) + ".txt"
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", file, err)
		}
		tmpl, err := template.New(string(k)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", file, err)
		}
		out[k] = tmpl
	}
	return out, nil
}

func render(sys, user Kind, data Data) (Messages, error) {
	tmpls, err := loadTemplates()
	if err != nil {
		return Messages{}, err
	}
	var m Messages
	for _, part := range []struct {
		kind Kind
		dst  *string
	}{{sys, &m.System}, {user, &m.User}} {
		var buf bytes.Buffer
		if err := tmpls[part.kind].Execute(&buf, data); err != nil {
			return Messages{}, fmt.Errorf("execute %s: %w", part.kind, err)
		}
		*part.dst = strings.TrimSpace(buf.String())
	}
	return m, nil
}

// Feedback builds the coach messages for a learner's answer to p.
func Feedback(p model.Prompt, answer, lang string) (Messages, error) {
	return render(FeedbackSystem, FeedbackUser, Data{
		Week:                 p.Week,
		Component:            p.Component,
		ComponentDescription: componentDescriptions[p.Component],
		Question:             p.Question,
		Answer:               sanitizeAnswer(answer),
		Language:             languageName(lang),
	})
}

// FollowUp builds the messages for a follow-up question. previous may be empty.
func FollowUp(component model.Component, week int, previous, lang string) (Messages, error) {
	data := Data{
		Week:      week,
		Component: component,
		Language:  languageName(lang),
	}
	if strings.TrimSpace(previous) != "" {
		data.Answer = sanitizeAnswer(previous)
	}
	return render(FollowUpSystem, FollowUpUser, data)
}

// Completion builds the end-of-session messages from the learner's last
// three messages.
func Completion(history []model.Turn, lang string) (Messages, error) {
	return render(CompletionSystem, CompletionUser, Data{
		Answer:   sanitizeAnswer(LastUserMessages(history, 3)),
		Language: languageName(lang),
	})
}

// LastUserMessages joins the content of the last n learner turns.
func LastUserMessages(history []model.Turn, n int) string {
	var msgs []string
	for _, t := range history {
		if t.Sender == model.SenderUser && strings.TrimSpace(t.Content) != "" {
			msgs = append(msgs, t.Content)
		}
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return strings.Join(msgs, "\n\n")
}

// languageName returns the English name of lang, or "" for English and
// unparseable tags.
func languageName(lang string) string {
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	if base, _ := tag.Base(); base.String() == "en" {
		return ""
	}
	return display.English.Languages().Name(tag)
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
