package notification

import (
	"github.com/carriage/carriage-api/internal/model"
)

// receiverRule lists who hears about an event. Driver is added only when the ride has one.
type receiverRule struct {
	always   []model.Role
	ifDriver bool
}

// receiverTable is deliberately explicit. The mapping is asymmetric and pairs that are not
// listed produce no notification.
var receiverTable = map[model.Role]map[model.NotificationEvent]receiverRule{
	model.RoleRider: {
		model.EventEdited:    {always: []model.Role{model.RoleAdmin}, ifDriver: true},
		model.EventCancelled: {always: []model.Role{model.RoleAdmin}, ifDriver: true},
	},
	model.RoleDriver: {
		model.EventLate:     {always: []model.Role{model.RoleRider, model.RoleAdmin}},
		model.EventNoShow:   {always: []model.Role{model.RoleRider, model.RoleAdmin}},
		model.EventOnTheWay: {always: []model.Role{model.RoleRider}},
		model.EventArrived:  {always: []model.Role{model.RoleRider}},
	},
	model.RoleAdmin: {
		model.EventCreated:   {always: []model.Role{model.RoleRider}, ifDriver: true},
		model.EventScheduled: {always: []model.Role{model.RoleRider}, ifDriver: true},
		model.EventEdited:    {always: []model.Role{model.RoleRider}, ifDriver: true},
		model.EventCancelled: {always: []model.Role{model.RoleRider}, ifDriver: true},
	},
}

// ResolveReceivers returns the roles to notify when sender causes event. ok is false when the
// pair is not in the table.
func ResolveReceivers(sender model.Role, event model.NotificationEvent, hasDriver bool) (receivers []model.Role, ok bool) {
	rule, ok := receiverTable[sender][event]
	if !ok {
		return nil, false
	}
	receivers = append(receivers, rule.always...)
	if rule.ifDriver && hasDriver {
		receivers = append(receivers, model.RoleDriver)
	}
	return receivers, true
}
