package telegram

// Update is an incoming update from the Telegram Bot API.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	EditedMessage *Message       `json:"edited_message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is a Telegram message.
type Message struct {
	MessageID          int64           `json:"message_id"`
	From               *User           `json:"from,omitempty"`
	SenderChat         *Chat           `json:"sender_chat,omitempty"`
	Chat               Chat            `json:"chat"`
	Date               int64           `json:"date"`
	Text               string          `json:"text,omitempty"`
	Caption            string          `json:"caption,omitempty"`
	Entities           []MessageEntity `json:"entities,omitempty"`
	CaptionEntities    []MessageEntity `json:"caption_entities,omitempty"`
	ReplyToMessage     *Message        `json:"reply_to_message,omitempty"`
	MessageThreadID    int64           `json:"message_thread_id,omitempty"`
	IsAutomaticForward bool            `json:"is_automatic_forward,omitempty"`
}

// MessageEntity annotates a span of message text.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

// Chat is a Telegram chat.
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// User is a Telegram user.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// CallbackQuery is an inline-button press. Data is the opaque payload the
// button carried, at most 64 bytes.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// ChatMember is a getChatMember result; only the status matters here.
type ChatMember struct {
	Status string `json:"status"`
	User   User   `json:"user"`
}

// InlineKeyboardMarkup is an inline keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton is one button of an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}
