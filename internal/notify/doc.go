// Package notify is the principal-scoped entry point to notifications
// and their TODO tasks.
//
// Every operation takes the calling Principal explicitly. There is no
// ambient security context: authentication happens upstream and its result
// is passed in. Authoring operations require an admin principal; TODO
// operations are confined to the principal's own tasks.
package notify
