// Package curation is the bridge between the admin chat bot and the store.
// Inbound callbacks carry an action plus a target id; each one is applied as
// a single audited transaction, serialized per spot so decisions land in
// receipt order.
package curation

import (
	"strconv"
	"strings"

	errs "venue-intel-pipeline/pkg/errors"
)

// Action identifies one curator decision type.
type Action string

const (
	ActionApprove       Action = "approve" // approve a pending spot
	ActionDeny          Action = "deny"    // deny a pending spot
	ActionActivityAdd   Action = "actadd"  // accept a proposed activity category
	ActionActivityDeny  Action = "actdeny" // retire a proposed activity category
	ActionReportExclude Action = "rptexcl" // uphold a user report: delete + watchlist
	ActionReportKeep    Action = "rptkeep" // dismiss a user report
	ActionEditApprove   Action = "edtappr" // apply a queued edit
	ActionEditDeny      Action = "edtdeny" // drop a queued edit
	ActionDeleteApprove Action = "delappr" // confirm a delete request
	ActionDeleteDeny    Action = "deldeny" // refuse a delete request
)

// maxActivityNameLen caps parsed activity names; anything longer is not a
// category, it is garbage.
const maxActivityNameLen = 64

// TargetsActivity reports whether the action addresses an activity category
// rather than a spot.
func (a Action) TargetsActivity() bool {
	return a == ActionActivityAdd || a == ActionActivityDeny
}

// Callback is one decoded admin decision. Spot actions carry SpotID;
// activity actions carry Activity.
type Callback struct {
	Action   Action
	SpotID   int64
	Activity string
}

// spotActions is the set of actions whose id segment is an integer spot id.
var spotActions = map[Action]bool{
	ActionApprove:       true,
	ActionDeny:          true,
	ActionReportExclude: true,
	ActionReportKeep:    true,
	ActionEditApprove:   true,
	ActionEditDeny:      true,
	ActionDeleteApprove: true,
	ActionDeleteDeny:    true,
}

// ParseCallback decodes an "<action>_<id>" payload. The id segment is an
// integer spot id for spot actions and a sanitized category name for
// activity actions; underscores in category names stand in for spaces.
func ParseCallback(data string) (Callback, error) {
	action, id, ok := strings.Cut(data, "_")
	if !ok || action == "" || id == "" {
		return Callback{}, errs.NewPermanent("curation.ParseCallback",
			"malformed callback payload "+strconv.Quote(data), nil)
	}

	a := Action(action)
	if a.TargetsActivity() {
		name, err := sanitizeActivity(id)
		if err != nil {
			return Callback{}, err
		}
		return Callback{Action: a, Activity: name}, nil
	}
	if !spotActions[a] {
		return Callback{}, errs.NewPermanent("curation.ParseCallback",
			"unknown callback action "+strconv.Quote(action), nil)
	}

	spotID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || spotID <= 0 {
		return Callback{}, errs.NewPermanent("curation.ParseCallback",
			"invalid spot id "+strconv.Quote(id), err)
	}
	return Callback{Action: a, SpotID: spotID}, nil
}

// sanitizeActivity normalizes the activity id segment into a category name.
// The transport flattens spaces to underscores; anything outside letters,
// digits, spaces, hyphens, ampersands and apostrophes is rejected.
func sanitizeActivity(id string) (string, error) {
	name := strings.TrimSpace(strings.ReplaceAll(id, "_", " "))
	if name == "" || len(name) > maxActivityNameLen {
		return "", errs.NewPermanent("curation.ParseCallback",
			"invalid activity name "+strconv.Quote(id), nil)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ' ', r == '-', r == '&', r == '\'':
		default:
			return "", errs.NewPermanent("curation.ParseCallback",
				"invalid activity name "+strconv.Quote(id), nil)
		}
	}
	return name, nil
}
