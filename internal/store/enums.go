package store

// Identifier type ENUMs
const (
	IdentifierTypeClickID = "click_id"
	IdentifierTypeEmail   = "email"
	IdentifierTypePhone   = "phone"
)

// Journey stage markers. Stage is monotonically non-decreasing for a
// (customer, operator) pair except on an explicit recycle reset.
const (
	StageUndefined     = -1
	StageRegistered    = 0
	StageFirstDeposit  = 1
	StageSecondDeposit = 2
	StageHighValue     = 3
)

// Journey type ENUMs
const (
	JourneyNone        = "none"
	JourneyAcquisition = "acquisition"
	JourneyRetention   = "retention"
)

// Message channel ENUMs
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Message status ENUMs. Pending messages move to sending when claimed by a
// dispatcher, then to exactly one terminal state.
const (
	MessageStatusPending   = "pending"
	MessageStatusSending   = "sending"
	MessageStatusSent      = "sent"
	MessageStatusFailed    = "failed"
	MessageStatusCancelled = "cancelled"
)

// Postback event type ENUMs
const (
	EventTypeRegistration = "registration"
	EventTypeFirstDeposit = "first_deposit"
	EventTypeDeposit      = "deposit"
	EventTypeWithdrawal   = "withdrawal"
)

// ValidEventTypes lists every accepted postback event type.
var ValidEventTypes = map[string]bool{
	EventTypeRegistration: true,
	EventTypeFirstDeposit: true,
	EventTypeDeposit:      true,
	EventTypeWithdrawal:   true,
}

// ValidChannels lists every accepted message channel.
var ValidChannels = map[string]bool{
	ChannelEmail: true,
	ChannelSMS:   true,
}

// ValidJourneyTypes lists every accepted journey type.
var ValidJourneyTypes = map[string]bool{
	JourneyNone:        true,
	JourneyAcquisition: true,
	JourneyRetention:   true,
}
