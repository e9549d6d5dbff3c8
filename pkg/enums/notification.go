package enums

// NotificationType is the message kind handed to the notification sender.
type NotificationType string

const (
	NotificationRegistration       NotificationType = "registration"
	NotificationNewOrder           NotificationType = "new_order"
	NotificationOrderStatusChanged NotificationType = "order_status_changed"
	NotificationImportCompleted    NotificationType = "import_completed"
	NotificationImportFailed       NotificationType = "import_failed"
	NotificationPasswordReset      NotificationType = "password_reset"
)
