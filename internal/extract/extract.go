// Package extract pulls the generated program out of a model answer.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ErrNoCodeBlock is returned when an answer carries no usable fenced block.
// Its text is forwarded to the model as the corrective instruction.
var ErrNoCodeBlock = errors.New("no code block found in model output")

var (
	patternMu sync.Mutex
	patterns  = map[string]*regexp.Regexp{}
)

// compiled returns the cached pattern for key, compiling expr on first use.
func compiled(key, expr string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patterns[key]; ok {
		return re
	}
	re := regexp.MustCompile(expr)
	patterns[key] = re
	return re
}

// opening matches the ```<lang> line, where the info string starts with
// lang (case-insensitive) and may carry extra attributes after whitespace.
func opening(lang string) string {
	return "(?is)```[ \\t]*" + regexp.QuoteMeta(lang) + "(?:[ \\t][^\\n]*)?\\r?\\n"
}

// fencePattern matches a closed ```<lang> ... ``` block.
func fencePattern(lang string) *regexp.Regexp {
	return compiled("fence:"+lang, opening(lang)+"(.*?)```")
}

// inlinePattern matches the single-line form ```python print(1)```.
func inlinePattern(lang string) *regexp.Regexp {
	return compiled("inline:"+lang, "(?is)```[ \\t]*"+regexp.QuoteMeta(lang)+"[ \\t]+(.*?)```")
}

// openPattern matches a block whose closing fence never arrived, as in an
// answer cut off at the output limit. The body runs to the end of text.
func openPattern(lang string) *regexp.Regexp {
	return compiled("open:"+lang, opening(lang)+"(.*)$")
}

// Code returns the body of the first ```lang fence in text, trimmed of
// surrounding whitespace. Later fences are ignored. A fence left open at the
// end of text yields everything after its opening line.
func Code(text, lang string) (string, error) {
	if lang == "" {
		lang = "python"
	}
	key := strings.ToLower(lang)

	var m []string
	for _, re := range []*regexp.Regexp{fencePattern(key), inlinePattern(key), openPattern(key)} {
		if m = re.FindStringSubmatch(text); m != nil {
			break
		}
	}
	if m == nil {
		return "", fmt.Errorf("%w: expected a ```%s``` block", ErrNoCodeBlock, lang)
	}
	code := strings.TrimSpace(m[1])
	if code == "" {
		return "", fmt.Errorf("%w: the ```%s``` block is empty", ErrNoCodeBlock, lang)
	}
	return code, nil
}

// Instruction is the corrective text sent back to the model after err.
func Instruction(err error, lang string) string {
	if lang == "" {
		lang = "python"
	}
	return fmt.Sprintf("Error: %v. Please wrap the code in a ```%s``` fence.", err, lang)
}
