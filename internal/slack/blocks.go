package slack

import "fmt"

// Минимально необходимое подмножество Block Kit. Структуры повторяют
// wire-формат Slack, поэтому имена полей — как в их документации.

type TextObject struct {
	Type string `json:"type"` // plain_text | mrkdwn
	Text string `json:"text"`
}

func plainText(text string) *TextObject {
	return &TextObject{Type: "plain_text", Text: text}
}

func mrkdwn(text string) *TextObject {
	return &TextObject{Type: "mrkdwn", Text: text}
}

type Block struct {
	Type     string      `json:"type"` // section | input | actions
	BlockID  string      `json:"block_id,omitempty"`
	Text     *TextObject `json:"text,omitempty"`
	Label    *TextObject `json:"label,omitempty"`
	Element  interface{} `json:"element,omitempty"`
	Elements []Button    `json:"elements,omitempty"`
}

type Button struct {
	Type     string      `json:"type"` // всегда "button"
	Text     *TextObject `json:"text"`
	Style    string      `json:"style,omitempty"` // primary | danger
	Value    string      `json:"value"`
	ActionID string      `json:"action_id"`
}

type SelectOption struct {
	Text  *TextObject `json:"text"`
	Value string      `json:"value"`
}

// NewSelectOption — пункт выпадающего списка (имя -> user ID).
func NewSelectOption(text, value string) SelectOption {
	return SelectOption{Text: plainText(text), Value: value}
}

type StaticSelect struct {
	Type        string         `json:"type"` // "static_select"
	Placeholder *TextObject    `json:"placeholder"`
	Options     []SelectOption `json:"options"`
	ActionID    string         `json:"action_id"`
}

type PlainTextInput struct {
	Type      string `json:"type"` // "plain_text_input"
	Multiline bool   `json:"multiline"`
	ActionID  string `json:"action_id"`
}

type ModalView struct {
	Type       string      `json:"type"` // "modal"
	CallbackID string      `json:"callback_id"`
	Title      *TextObject `json:"title"`
	Blocks     []Block     `json:"blocks"`
	Submit     *TextObject `json:"submit,omitempty"`
}

// Идентификаторы блоков и действий. Должны совпадать у формы и у парсинга
// payload'ов интеракций, поэтому живут в одном месте.
const (
	CallbackApprovalModal = "approval_modal"

	BlockApprover     = "approver_block"
	BlockApprovalText = "approval_text_block"

	ActionApproverSelect = "approver_select"
	ActionTextInput      = "approval_text_input"

	ActionApprove = "approve_request"
	ActionReject  = "reject_request"
)

// RequestModal собирает модалку заявки: выбор согласующего + многострочное описание.
func RequestModal(candidates []SelectOption) ModalView {
	return ModalView{
		Type:       "modal",
		CallbackID: CallbackApprovalModal,
		Title:      plainText("Request Approval"),
		Blocks: []Block{
			{
				Type:    "input",
				BlockID: BlockApprover,
				Label:   plainText("Select Approver"),
				Element: StaticSelect{
					Type:        "static_select",
					Placeholder: plainText("Select an approver"),
					Options:     candidates,
					ActionID:    ActionApproverSelect,
				},
			},
			{
				Type:    "input",
				BlockID: BlockApprovalText,
				Label:   plainText("Approval Request Details"),
				Element: PlainTextInput{
					Type:      "plain_text_input",
					Multiline: true,
					ActionID:  ActionTextInput,
				},
			},
		},
		Submit: plainText("Submit"),
	}
}

// ApprovalMessage — интерактивное сообщение согласующему с кнопками
// Approve/Reject. Value каждой кнопки несет approvalID для корреляции клика.
func ApprovalMessage(requesterID, requestText, approvalID string) (string, []Block) {
	fallback := fmt.Sprintf("New approval request from <@%s>: %s", requesterID, requestText)

	blocks := []Block{
		{
			Type: "section",
			Text: mrkdwn(fmt.Sprintf("You have a new approval request from <@%s>:\n\n>%s", requesterID, requestText)),
		},
		{
			Type:    "actions",
			BlockID: "approval_actions",
			Elements: []Button{
				{
					Type:     "button",
					Text:     plainText("Approve"),
					Style:    "primary",
					Value:    approvalID,
					ActionID: ActionApprove,
				},
				{
					Type:     "button",
					Text:     plainText("Reject"),
					Style:    "danger",
					Value:    approvalID,
					ActionID: ActionReject,
				},
			},
		},
	}
	return fallback, blocks
}

// AckMessage — подтверждение реквестеру, что заявка отправлена.
func AckMessage(approverID string) (string, []Block) {
	text := fmt.Sprintf("Your approval request has been sent to <@%s>.", approverID)
	return text, []Block{{Type: "section", Text: mrkdwn(text)}}
}

// DecisionMessage — уведомление реквестеру о вынесенном решении.
func DecisionMessage(deciderID string, approved bool) (string, []Block) {
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	text := fmt.Sprintf("Your request has been %s by <@%s>.", verdict, deciderID)
	return text, []Block{{Type: "section", Text: mrkdwn(text)}}
}

// ResolvedMessage — финальный вид исходного сообщения: кнопки заменяются
// статусом решения с цитатой исходного текста заявки.
func ResolvedMessage(requesterID, requestText string, approved bool) (string, []Block) {
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	fallback := fmt.Sprintf("Request %s: %s", verdict, requestText)

	blocks := []Block{
		{
			Type: "section",
			Text: mrkdwn(fmt.Sprintf("Request from <@%s> has been *%s*:\n\n>%s", requesterID, verdict, requestText)),
		},
	}
	return fallback, blocks
}
