package prompts

import _ "embed"

//go:embed scenario.md
var ScenarioPrompt string

//go:embed codegen.md.tmpl
var CodegenTemplate string

//go:embed review.md
var ReviewPrompt string

//go:embed corrective/render_failed.md.tmpl
var RenderFailedTemplate string

//go:embed corrective/review_rejected.md.tmpl
var ReviewRejectedTemplate string

//go:embed corrective/publish_failed.md.tmpl
var PublishFailedTemplate string

//go:embed corrective/feedback.md.tmpl
var FeedbackTemplate string
