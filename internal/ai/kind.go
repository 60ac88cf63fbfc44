// Package ai generates in-character companion messages through an
// OpenAI-compatible backend and guards the backend with a single-flight
// permit so concurrent trigger sources never stack up requests.
package ai

// Kind selects the prompt template for a generation request.
type Kind string

const (
	KindWaterReminder      Kind = "water_reminder"
	KindMealReminder       Kind = "meal_reminder"
	KindSittingReminder    Kind = "sitting_reminder"
	KindRelaxReminder      Kind = "relax_reminder"
	KindCustomReminder     Kind = "custom_reminder"
	KindMedicationReminder Kind = "medication_reminder"
	KindDrinkFeedback      Kind = "drink_feedback"
	KindManualChat         Kind = "manual_chat"
	KindRandomChat         Kind = "random_chat"
	KindWelcome            Kind = "welcome"
	KindGoodbye            Kind = "goodbye"
	KindReminderCreated    Kind = "reminder_created"
	KindSwitchGoodbye      Kind = "character_switch_goodbye"
	KindSwitchHello        Kind = "character_switch_hello"
	KindDailyBriefing      Kind = "daily_briefing"
)
