// Package alarm provides the gateway's deferred-event scheduler.
//
// Alarms are labelled points in time ("Sunrise", "Update", "Thermostat",
// ...). They are kept in a min-heap and a single timer is armed for the
// earliest one. When it fires the alarm is popped, handed to the Handler
// and the timer is re-armed for the next entry.
//
// Two alarms with the same label and the same fire time (to the second)
// are one alarm. Scheduling "Update" ten times within a second therefore
// produces one broadcast.
package alarm
