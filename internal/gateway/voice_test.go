package gateway

import "testing"

func TestVoiceRoomJoinLeaveRefcounting(t *testing.T) {
	vt := NewVoiceRoomTable()
	tab1 := authedSession(t, "usr_1")
	tab2 := authedSession(t, "usr_1")

	if first := vt.Join(tab1, "chan_voice", false, false); !first {
		t.Fatal("expected the first session to report firstSession=true")
	}
	if first := vt.Join(tab2, "chan_voice", false, false); first {
		t.Fatal("expected the second tab of the same user to report firstSession=false")
	}

	if last := vt.Leave("usr_1", "chan_voice"); last {
		t.Fatal("expected leaving with one tab remaining to report lastSession=false")
	}
	if !vt.InChannel("usr_1", "chan_voice") {
		t.Fatal("expected user to still be in the channel with one tab left")
	}

	if last := vt.Leave("usr_1", "chan_voice"); !last {
		t.Fatal("expected the final tab leaving to report lastSession=true")
	}
	if vt.InChannel("usr_1", "chan_voice") {
		t.Fatal("expected user to be fully gone from the channel")
	}
}

func TestVoiceUpdateSelfStateDeafenedImpliesMuted(t *testing.T) {
	vt := NewVoiceRoomTable()
	s := authedSession(t, "usr_1")
	vt.Join(s, "chan_voice", false, false)

	deafened := true
	m, d, ok := vt.UpdateSelfState("usr_1", "chan_voice", nil, &deafened)
	if !ok {
		t.Fatal("expected update to find the participant")
	}
	if !m || !d {
		t.Fatalf("expected deafened=true to force muted=true, got muted=%v deafened=%v", m, d)
	}
}

func TestVoiceUpdateSelfStateAbsentParticipant(t *testing.T) {
	vt := NewVoiceRoomTable()
	muted := true
	_, _, ok := vt.UpdateSelfState("usr_ghost", "chan_voice", &muted, nil)
	if ok {
		t.Fatal("expected update against an absent participant to report ok=false")
	}
}

func TestForceLeaveAllReturnsDepartedAndClearsRoom(t *testing.T) {
	vt := NewVoiceRoomTable()
	a := authedSession(t, "usr_a")
	b := authedSession(t, "usr_b")
	vt.Join(a, "chan_voice", false, false)
	vt.Join(b, "chan_voice", false, false)

	departed := vt.ForceLeaveAll("chan_voice")
	if len(departed) != 2 {
		t.Fatalf("expected 2 departed users, got %d", len(departed))
	}
	if vt.InChannel("usr_a", "chan_voice") || vt.InChannel("usr_b", "chan_voice") {
		t.Fatal("expected room to be fully torn down")
	}
	if departed := vt.ForceLeaveAll("chan_voice"); departed != nil {
		t.Fatal("expected a second ForceLeaveAll on an empty room to return nil")
	}
}

func TestChannelOfTracksSingleActiveChannel(t *testing.T) {
	vt := NewVoiceRoomTable()
	s := authedSession(t, "usr_1")
	vt.Join(s, "chan_voice", false, false)

	if got := vt.ChannelOf("usr_1"); got != "chan_voice" {
		t.Fatalf("expected chan_voice, got %q", got)
	}

	vt.Leave("usr_1", "chan_voice")
	if got := vt.ChannelOf("usr_1"); got != "" {
		t.Fatalf("expected empty channel after leaving, got %q", got)
	}
}
