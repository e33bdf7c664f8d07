// prompt.go renders the embedded prompt templates.
package orchestrator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/freQuensy23-coder/manim-gpt/internal/render"
	"github.com/freQuensy23-coder/manim-gpt/prompts"
)

var (
	codegenTmpl        = template.Must(template.New("codegen").Parse(prompts.CodegenTemplate))
	renderFailedTmpl   = template.Must(template.New("render_failed").Parse(prompts.RenderFailedTemplate))
	reviewRejectedTmpl = template.Must(template.New("review_rejected").Parse(prompts.ReviewRejectedTemplate))
	publishFailedTmpl  = template.Must(template.New("publish_failed").Parse(prompts.PublishFailedTemplate))
	feedbackTmpl       = template.Must(template.New("feedback").Parse(prompts.FeedbackTemplate))
)

func execute(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		// Templates are embedded at compile time; execution failure is a bug.
		return fmt.Sprintf("ERROR: failed to execute %s template: %v", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String())
}

func scenarioPrompt(request string) string {
	return strings.TrimSpace(prompts.ScenarioPrompt) + "\n\nVideo idea:\n" + request
}

func codegenPrompt(language, scene string) string {
	return execute(codegenTmpl, struct{ Language, Scene string }{language, scene})
}

func reviewPrompt() string {
	return strings.TrimSpace(prompts.ReviewPrompt)
}

func renderFailedPrompt(f *render.Failure) string {
	trace := f.Trace
	if strings.TrimSpace(trace) == "" {
		trace = f.Message
	}
	return execute(renderFailedTmpl, struct {
		Message  string
		Trace    string
		TimedOut bool
	}{strings.TrimSuffix(f.Message, "."), trace, f.TimedOut})
}

func reviewRejectedPrompt(issues, hint string) string {
	return execute(reviewRejectedTmpl, struct{ Issues, Hint string }{issues, hint})
}

func publishFailedPrompt(err error) string {
	return execute(publishFailedTmpl, struct{ Error string }{err.Error()})
}

func feedbackPrompt(feedback, codegen string, attachErr error) string {
	data := struct {
		Attached    bool
		AttachError string
		Feedback    string
		Codegen     string
	}{Attached: attachErr == nil, Feedback: feedback, Codegen: codegen}
	if attachErr != nil {
		data.AttachError = attachErr.Error()
	}
	return execute(feedbackTmpl, data)
}
