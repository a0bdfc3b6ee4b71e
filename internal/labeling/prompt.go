package labeling

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ironsheep/form-annotator-mcp/internal/fusion"
	"github.com/ironsheep/form-annotator-mcp/internal/layout"
)

const englishPrompt = `You help a visually impaired user understand and fill in a form. Numbered translucent boxes have been drawn over the places on the form where something may be written or ticked.

1. Read the whole form and write a short, useful summary in English: what the form is for, any organisations or key conditions it names, and the kinds of information the user will be asked for.

2. For every numbered box, find the printed label or description that belongs to it.
   - Mark the box "valid": false if the text shows it is for official use, an example, an instruction, or it already holds a definite value.
   - Mark it "valid": true if it clearly asks the user for information, such as a name, an address or a signature.
   - Checkboxes are almost always valid.
   - Copy the label exactly as printed. Do not translate, romanise or summarise it.

3. Reply with a single JSON object and nothing else:
{"explanation": "summary", "fields": [{"id": 1, "label": "label of box 1", "valid": true}]}`

const arabicPrompt = `أنت تساعد مستخدمًا كفيفًا على فهم نموذج وتعبئته. رُسمت فوق النموذج مربعات شفافة مرقمة في الأماكن التي يمكن الكتابة فيها أو وضع علامة.

1. اقرأ النموذج كاملًا واكتب ملخصًا قصيرًا ومفيدًا باللغة العربية فقط: الغرض من النموذج، وأي جهات أو شروط رئيسية مذكورة فيه، وأنواع المعلومات التي سيُطلب من المستخدم تقديمها.

2. لكل مربع مرقم، حدد التسمية أو الوصف المطبوع الخاص به.
   - اجعل "valid": false إذا كان النص يدل على أنه للاستخدام الرسمي فقط، أو مثال، أو تعليمة، أو يحتوي بالفعل على قيمة محددة.
   - اجعل "valid": true إذا كان يطلب من المستخدم معلومة بوضوح مثل الاسم أو العنوان أو التوقيع.
   - مربعات الاختيار صالحة دائمًا تقريبًا.
   - انسخ التسمية كما هي مطبوعة تمامًا دون ترجمة أو تلخيص.

3. أجب بكائن JSON واحد فقط دون أي نص آخر:
{"explanation": "الملخص", "fields": [{"id": 1, "label": "تسمية المربع 1", "valid": true}]}`

// Prompt returns the labeling instructions for a form read in dir. Arabic
// forms get Arabic instructions so the summary comes back in Arabic.
func Prompt(dir layout.Direction) string {
	if dir == layout.RTL {
		return arabicPrompt
	}
	return englishPrompt
}

type rawResponse struct {
	Explanation string     `json:"explanation"`
	Fields      []rawField `json:"fields"`
}

type rawField struct {
	ID    json.RawMessage `json:"id"`
	Label string          `json:"label"`
	Valid *bool           `json:"valid"`
}

// ParseResponse decodes a model reply. Markdown code fences and any prose
// around the JSON object are ignored. Both the explanation and the field list
// are required; fields whose id is not a positive integer are skipped.
func ParseResponse(text string) (*Result, error) {
	body := extractJSON(text)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}

	var raw rawResponse
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Fields == nil || strings.TrimSpace(raw.Explanation) == "" {
		return nil, fmt.Errorf("%w: missing explanation or fields", ErrMalformedResponse)
	}

	result := &Result{
		Explanation: strings.TrimSpace(raw.Explanation),
		Labels:      make([]fusion.Label, 0, len(raw.Fields)),
	}
	for _, f := range raw.Fields {
		id, ok := parseID(f.ID)
		if !ok {
			continue
		}
		result.Labels = append(result.Labels, fusion.Label{
			ID:    id,
			Label: strings.TrimSpace(f.Label),
			Valid: f.Valid,
		})
	}
	return result, nil
}

// extractJSON strips code fences and returns the outermost {...} span.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}

// parseID accepts 3, 3.0 and "3".
func parseID(raw json.RawMessage) (int, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false
		}
		n = float64(v)
	}
	if n < 1 || n != float64(int(n)) {
		return 0, false
	}
	return int(n), true
}
