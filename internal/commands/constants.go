package commands

// TelegramCommands contains all commands for the Telegram bot
const (
	// Main commands
	Start = "/start"

	// Navigation commands
	ReturnToMainMenu = "Return to Main Menu"

	// Member commands
	MyVPN        = "My VPN"
	FreeTrial    = "Free Trial"
	BuyPlan      = "Buy Plan"
	CheckPayment = "Check Payment"
	MyUsage      = "My Usage"
	NewLink      = "New Link"

	// Administrator commands
	PendingRequests = "Pending Requests"
	FindUser        = "Find User"

	// Guest commands
	RequestAccess = "Request Access"

	// Callback data prefixes
	CallbackPlan    = "plan:"
	CallbackApprove = "approve:"
	CallbackReject  = "reject:"
)
