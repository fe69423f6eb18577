package queue

type TaskType string

const (
	// TaskTypeInboundMessage is a recipient message arriving from the
	// gateway, to be relayed into its session.
	TaskTypeInboundMessage TaskType = "inbound_message"
)
