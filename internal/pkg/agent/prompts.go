package agent

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/ssq-labs/commentpilot/app/models"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var promptTemplates = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

const (
	promptDeleteComment = "delete_comment.tmpl"
	promptIgnoreComment = "ignore_comment.tmpl"
	promptCreateReply   = "create_reply.tmpl"
	promptDetectIntent  = "detect_intent.tmpl"
)

// User prompts sent alongside each system prompt.
const (
	userPromptDelete = "Check if the user comment should be deleted"
	userPromptIgnore = "Check if the user comment should be ignored"
	userPromptReply  = "Reply to the user comment"
	userPromptIntent = "Classify the user comment"
)

// AllPlatforms lists the platforms prompts know how to describe.
var AllPlatforms = []string{models.PlatformYouTube, models.PlatformInstagram}

var platformDescriptions = map[string]string{
	models.PlatformYouTube:   "Comments on YouTube videos can be up to 2000 characters long and can contain emojis.",
	models.PlatformInstagram: "Comments on Instagram photos and videos can be up to 1024 characters long and can contain emojis.",
}

// PlatformDescription returns the comment constraints of a platform.
func PlatformDescription(platform string) string {
	return platformDescriptions[platform]
}

type promptData struct {
	PlatformName        string
	PlatformDescription string
	AllPlatforms        []string
	Instructions        string
	Persona             *models.Persona
	Comment             string
	Intent              string
}

func renderPrompt(name string, data promptData) (string, error) {
	data.PlatformDescription = PlatformDescription(data.PlatformName)
	data.AllPlatforms = AllPlatforms

	var buf bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

func userPrompt(prefix, comment string) string {
	return fmt.Sprintf(`%s: "%s"`, prefix, comment)
}
