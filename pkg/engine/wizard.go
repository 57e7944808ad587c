package engine

import "fmt"

// wizardStages is the ordered campaign setup flow. Until every stage is
// complete, each message carries the current stage's instructions so the
// facilitator walks new groups through setup before play begins.
var wizardStages = []string{
	"Introduce yourself and learn about the group: how many players there are, " +
		"what tone they want (grim, heroic, comedic), and any house rules. " +
		"When you have that, call complete_setup_step with step 1.",

	"Help each player build a character: name, race, class, and a short concept. " +
		"Store each finished sheet with submit_character_sheet. " +
		"When every player has a character, call complete_setup_step with step 2.",

	"Establish the setting together: the starting region, the party's shared history, " +
		"and an opening hook. Record the essentials with update_world_info. " +
		"When the setting is agreed, call complete_setup_step with step 3.",

	"Run a short session zero scene to let the party try their characters, then " +
		"start the campaign proper with start_new_session and call complete_setup_step " +
		"with step 4 to finish setup.",
}

// wizardComplete is the stage count after which setup instructions stop.
const wizardComplete = 4

// wizardInstructions returns the setup banner for the current stage, empty
// once setup is finished.
func wizardInstructions(stage int) string {
	if stage >= wizardComplete {
		return ""
	}
	if stage < 0 {
		stage = 0
	}
	return fmt.Sprintf("[Campaign Setup - Step %d of %d]\n%s\n\n", stage+1, wizardComplete, wizardStages[stage])
}
