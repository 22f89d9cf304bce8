package satconf

import (
	"context"
	"slices"
	"testing"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

func TestSwitchConfig_Frames(t *testing.T) {
	tests := []struct {
		name string
		sw   *SwitchConfig
		pol  int
		band int
		n    int
		want []string
	}{
		{
			name: "committed port 0 horizontal high",
			sw:   NewSwitchConfig(0),
			pol:  1,
			band: 1,
			want: []string{"e0 10 38 f3"},
		},
		{
			name: "committed port 3 vertical low",
			sw:   NewSwitchConfig(3),
			want: []string{"e0 10 38 fc"},
		},
		{
			name: "repeat framing",
			sw:   NewSwitchConfig(1),
			pol:  1,
			n:    1,
			want: []string{"e1 10 38 f6"},
		},
		{
			name: "uncommitted after committed",
			sw:   &SwitchConfig{Committed: 0, Uncommitted: 5, Toneburst: -1},
			want: []string{"e0 10 38 f0", "e0 10 39 f5"},
		},
		{
			name: "uncommitted first",
			sw:   &SwitchConfig{Committed: 0, Uncommitted: 5, Toneburst: -1, UncommittedFirst: true},
			want: []string{"e0 10 39 f5", "e0 10 38 f0"},
		},
		{
			name: "uncommitted only",
			sw:   &SwitchConfig{Committed: -1, Uncommitted: 15, Toneburst: -1},
			want: []string{"e0 10 39 ff"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, f := range tt.sw.Frames(tt.pol, tt.band, tt.n) {
				got = append(got, f.String())
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Frames() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSwitchConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sw      SwitchConfig
		wantErr bool
	}{
		{"all unused", SwitchConfig{Committed: -1, Uncommitted: -1, Toneburst: -1}, false},
		{"full range", SwitchConfig{Committed: 3, Uncommitted: 15, Toneburst: 1}, false},
		{"committed 4", SwitchConfig{Committed: 4, Uncommitted: -1, Toneburst: -1}, true},
		{"uncommitted 16", SwitchConfig{Committed: 0, Uncommitted: 16, Toneburst: -1}, true},
		{"toneburst 2", SwitchConfig{Committed: 0, Uncommitted: -1, Toneburst: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sw.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSwitch_FourPortScenario(t *testing.T) {
	env := newTestEnv(t)
	sc, opener := env.addSatConf(t, "adapter0", Settings{}, &Element{
		ID: "astra", Enabled: true, Networks: []string{"astra"},
		LNB: universal(t), Switch: NewSwitchConfig(3),
	})

	res, err := sc.StartTuning(context.Background(), Request{
		MuxID:  "mux-1",
		Tuning: tuning("astra", 11727000, dvb.Horizontal),
	})
	if err != nil {
		t.Fatalf("StartTuning() error = %v", err)
	}
	if res.Band != 1 || res.Polarity != 1 || res.IntermediateFrequency != 1127000 {
		t.Errorf("band/pol/if = %d/%d/%d, want 1/1/1127000", res.Band, res.Polarity, res.IntermediateFrequency)
	}
	if res.State != StateLocked {
		t.Errorf("State = %v, want locked", res.State)
	}
	assertCalls(t, opener.Last(),
		"tone off",
		"voltage 18V",
		"frame e0 10 38 ff",
		"tone on",
		"lock 1127000",
	)
}

func TestSwitch_Toneburst(t *testing.T) {
	env := newTestEnv(t)
	sw := NewSwitchConfig(-1)
	sw.Toneburst = 1
	sc, opener := env.addSatConf(t, "adapter0", Settings{}, &Element{
		ID: "b", Enabled: true, Networks: []string{"hotbird"},
		LNB: universal(t), Switch: sw,
	})

	req := Request{MuxID: "m", Tuning: tuning("hotbird", 10971000, dvb.Vertical)}
	if _, err := sc.StartTuning(context.Background(), req); err != nil {
		t.Fatalf("StartTuning() error = %v", err)
	}
	assertCalls(t, opener.Last(),
		"tone off",
		"voltage 13V",
		"burst B",
		"lock 1221000",
	)

	opener.Last().Reset()
	if _, err := sc.StartTuning(context.Background(), req); err != nil {
		t.Fatalf("second StartTuning() error = %v", err)
	}
	assertCalls(t, opener.Last(), "lock 1221000")
}
