package bot

import (
	"fmt"
	"strconv"

	"bingo_bot/internal/service"
)

const (
	cbMainMenu       = "main_menu"
	cbShowTasks      = "show_tasks"
	cbShowPoints     = "show_points"
	cbSetWallet      = "set_wallet"
	cbShowReferral   = "show_referral"
	cbPromptWithdraw = "prompt_withdraw"
	cbWithdrawPrefix = "withdraw_"
	cbClaimPrefix    = "claim_"
	cbNoop           = "noop"
)

func mainMenuKeyboard() [][]Button {
	return [][]Button{
		{
			{Text: "📋 View Tasks", Data: cbShowTasks},
			{Text: "💰 My Points", Data: cbShowPoints},
		},
		{
			{Text: "💳 Set Wallet", Data: cbSetWallet},
			{Text: "🔗 My Referral Link", Data: cbShowReferral},
		},
		{
			{Text: "💸 Withdraw", Data: cbPromptWithdraw},
		},
	}
}

// withdrawalKeyboard lays the configured amounts out two per row followed by
// a cancel button.
func withdrawalKeyboard(options []int) [][]Button {
	buttons := make([]Button, 0, len(options)+1)
	for _, amount := range options {
		buttons = append(buttons, Button{
			Text: fmt.Sprintf("%s pts", groupThousands(amount)),
			Data: cbWithdrawPrefix + strconv.Itoa(amount),
		})
	}
	buttons = append(buttons, Button{Text: "⬅️ Cancel", Data: cbMainMenu})
	return pairs(buttons)
}

// tasksKeyboard offers a claim button for every task not yet completed.
// Tasks under review get an inert button.
func tasksKeyboard(views []service.TaskView) ([][]Button, bool) {
	var buttons []Button
	for _, v := range views {
		switch v.Status {
		case service.TaskCompleted:
			continue
		case service.TaskUnderReview:
			buttons = append(buttons, Button{
				Text: fmt.Sprintf("⏳ %s (Under Review)", v.Task.Title),
				Data: cbNoop,
			})
		default:
			buttons = append(buttons, Button{
				Text: fmt.Sprintf("Claim %s (+%d pts)", v.Task.Title, v.Task.Points),
				Data: cbClaimPrefix + v.Task.ID,
			})
		}
	}

	rows := pairs(buttons)
	rows = append(rows, []Button{{Text: "⬅️ Back to Menu", Data: cbMainMenu}})
	return rows, len(buttons) == 0
}

func pairs(buttons []Button) [][]Button {
	var rows [][]Button
	for i := 0; i < len(buttons); i += 2 {
		end := i + 2
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
