package curation

import (
	"strings"
	"testing"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Callback
		wantErr bool
	}{
		{name: "approve spot", data: "approve_42", want: Callback{Action: ActionApprove, SpotID: 42}},
		{name: "deny spot", data: "deny_7", want: Callback{Action: ActionDeny, SpotID: 7}},
		{name: "edit approve", data: "edtappr_3", want: Callback{Action: ActionEditApprove, SpotID: 3}},
		{name: "edit deny", data: "edtdeny_3", want: Callback{Action: ActionEditDeny, SpotID: 3}},
		{name: "delete approve", data: "delappr_11", want: Callback{Action: ActionDeleteApprove, SpotID: 11}},
		{name: "delete deny", data: "deldeny_11", want: Callback{Action: ActionDeleteDeny, SpotID: 11}},
		{name: "report exclude", data: "rptexcl_5", want: Callback{Action: ActionReportExclude, SpotID: 5}},
		{name: "report keep", data: "rptkeep_5", want: Callback{Action: ActionReportKeep, SpotID: 5}},
		{
			name: "activity underscores become spaces",
			data: "actadd_wine_tasting",
			want: Callback{Action: ActionActivityAdd, Activity: "wine tasting"},
		},
		{
			name: "activity deny",
			data: "actdeny_trivia",
			want: Callback{Action: ActionActivityDeny, Activity: "trivia"},
		},
		{
			name: "activity keeps apostrophes and hyphens",
			data: "actadd_ladies'_night-out",
			want: Callback{Action: ActionActivityAdd, Activity: "ladies' night-out"},
		},
		{name: "unknown action", data: "promote_5", wantErr: true},
		{name: "missing separator", data: "approve", wantErr: true},
		{name: "empty payload", data: "", wantErr: true},
		{name: "empty id", data: "approve_", wantErr: true},
		{name: "non integer spot id", data: "approve_abc", wantErr: true},
		{name: "zero spot id", data: "approve_0", wantErr: true},
		{name: "negative spot id", data: "approve_-4", wantErr: true},
		{name: "activity with control characters", data: "actadd_drop%table", wantErr: true},
		{name: "activity too long", data: "actadd_" + strings.Repeat("a", maxActivityNameLen+1), wantErr: true},
		{name: "activity only underscores", data: "actadd___", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCallback(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCallback(%q) = %+v, want error", tt.data, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCallback(%q): %v", tt.data, err)
			}
			if got != tt.want {
				t.Errorf("ParseCallback(%q) = %+v, want %+v", tt.data, got, tt.want)
			}
		})
	}
}

func TestTargetsActivity(t *testing.T) {
	for _, a := range []Action{ActionActivityAdd, ActionActivityDeny} {
		if !a.TargetsActivity() {
			t.Errorf("%s.TargetsActivity() = false, want true", a)
		}
	}
	for _, a := range []Action{ActionApprove, ActionDeny, ActionReportExclude, ActionDeleteApprove} {
		if a.TargetsActivity() {
			t.Errorf("%s.TargetsActivity() = true, want false", a)
		}
	}
}
