package ai

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deskpal/deskpal/internal/logging"
)

// Templates maps message kinds to prompt template text. Placeholders of the
// form {name} are substituted from the request variables; unresolved
// placeholders are left in place rather than failing the request.
type Templates struct {
	Prompts map[string]string `yaml:"prompts"`
}

var defaultTemplates = map[string]string{
	string(KindWaterReminder):      "Task: Generate a short reminder to drink water (max 50 words). Current status: {cups}/{target} cups. Tone: Keep the persona, caring but with humor.",
	string(KindMealReminder):       "Task: Remind the user it's {meal_time}. Tell them to eat properly (max 40 words). Tone: Caring, like reminding someone important.",
	string(KindSittingReminder):    "Task: Remind the user they've been sitting too long. Tell them to stand up and stretch (max 40 words). Tone: Concerned about their health, gentle but firm.",
	string(KindRelaxReminder):      "Task: Remind the user to take a break and relax their eyes and mind (max 40 words). Tone: Warm and caring.",
	string(KindCustomReminder):     "Task: Deliver this custom reminder: '{custom_message}'. Remaining times: {remaining_count}. Add a caring personal touch (max 40 words). Tone: Keep the persona.",
	string(KindMedicationReminder): "Task: Remind the user to take their medication: '{medication_name}'. Remind them gently and caringly (max 40 words). Tone: Caring and health-conscious.",
	string(KindDrinkFeedback):      "Task: The user just drank a cup of water. Current status: {cups}/{target}. Give short feedback (max 30 words). Tone: Encouraging praise with personality.",
	string(KindManualChat):         "Task: Reply to the user. Keep it short and in character. User says: {user_input}",
	string(KindRandomChat):         "Task: Tell a short chat or joke (max 50 words). Tone: Keep the persona.",
	string(KindWelcome):            "Task: The user just started the app. It's {time_of_day}. They were away for {offline_text}. Greet them (max 40 words). Tone: Warm welcome with personality.",
	string(KindGoodbye):            "Task: The user is closing the app. Say goodbye (max 30 words). Tone: Reluctant but caring farewell.",
	string(KindReminderCreated):    "Task: The user just created a new reminder: '{reminder_content}', interval: {interval} minutes, count: {count} times. Acknowledge and respond in character (max 40 words). Tone: Supportive.",
	string(KindSwitchGoodbye):      "Task: The user is switching from you to another character: '{next_character_name}'. Say goodbye (max 50 words). Tone: Natural farewell, acknowledge the switch.",
	string(KindSwitchHello):        "Task: The user just switched to you from another character: '{prev_character_name}'. Greet them (max 50 words). Tone: Welcoming.",
	string(KindDailyBriefing):      "Task: Start the day with a daily briefing. 1. State today's date ({date}, {weekday}). 2. Briefly mention the weather if provided: {weather}. 3. Give a short encouraging tip for the day. Tone: Energetic and supportive.",
}

// DefaultTemplates returns the built-in prompt table.
func DefaultTemplates() *Templates {
	prompts := make(map[string]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		prompts[k] = v
	}
	return &Templates{Prompts: prompts}
}

// LoadTemplates reads a YAML override file layered over the defaults. A
// missing or malformed file falls back to the defaults; overriding is
// best-effort, never fatal.
func LoadTemplates(path string) *Templates {
	t := DefaultTemplates()
	data, err := os.ReadFile(path)
	if err != nil {
		return t
	}
	var override Templates
	if err := yaml.Unmarshal(data, &override); err != nil {
		logging.Warnf("ignoring malformed prompt templates %s: %v", path, err)
		return t
	}
	for k, v := range override.Prompts {
		if v != "" {
			t.Prompts[k] = v
		}
	}
	logging.Infof("loaded prompt template overrides from %s", path)
	return t
}

// Render returns the template for kind with {name} placeholders substituted
// from vars. Unknown kinds fall back to the random chat template.
func (t *Templates) Render(kind Kind, vars map[string]string) string {
	tmpl, ok := t.Prompts[string(kind)]
	if !ok {
		tmpl = t.Prompts[string(KindRandomChat)]
	}
	return substitute(tmpl, vars)
}

func substitute(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
