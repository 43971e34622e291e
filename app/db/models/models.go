package models

var Models = []interface{}{
	&Workflow{},
	&Task{},
	&Performer{},
	&GroupMember{},
	&Delay{},
	&Condition{},
	&Event{},
	&OutboxIntent{},
	&WebhookSubscription{},
	&NamedLock{},
}
