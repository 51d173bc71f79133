package main

import (
	"encoding/json"
	"testing"

	"github.com/srg/pulsezone/internal/testutils"
	"github.com/srg/pulsezone/internal/zone"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ZonesTestSuite struct {
	CommandTestSuite
}

func (s *ZonesTestSuite) listJSON(storePath string) zone.Set {
	out, _, err := s.ExecuteCommandSplit("zones", "list", "-f", "json", "--store", storePath)
	s.Require().NoError(err)
	var set zone.Set
	s.Require().NoError(json.Unmarshal([]byte(out), &set), "zones list MUST emit JSON")
	return set
}

// GOAL: Verify the default zone table on first run
//
// TEST SCENARIO: Empty store → five default zones with bounds
func (s *ZonesTestSuite) TestListDefaults() {
	out, err := s.ExecuteCommand("zones", "list", "--store", s.StorePath())

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, ""+
		"NAME       FROM  TO   COLOR    ID\n"+
		"Warm Up    60    99   blue     zone-1\n"+
		"Fat Burn   100   119  green    zone-2\n"+
		"Aerobic    120   139  yellow   zone-3\n"+
		"Anaerobic  140   159  magenta  zone-4\n"+
		"Maximum    160   -    red      zone-5\n")
	s.Fake.AssertNotCalled(s.T(), "Start", mock.Anything)
}

// GOAL: Verify zones set persists a sorted set with generated ids
//
// TEST SCENARIO: Set three zones out of order → list returns them sorted with ULID ids
func (s *ZonesTestSuite) TestSetPersistsZones() {
	storePath := s.StorePath()

	_, err := s.ExecuteCommand("zones", "set", "Hard=155:red", "Easy=90", "Tempo=130:yellow", "--store", storePath)
	s.Require().NoError(err)

	set := s.listJSON(storePath)
	s.Require().Len(set, 3)
	s.Equal([]string{"Easy", "Tempo", "Hard"}, []string{set[0].Name, set[1].Name, set[2].Name})
	s.Equal([]int{90, 130, 155}, []int{set[0].StartRate, set[1].StartRate, set[2].StartRate})
	s.Equal("yellow", set[1].Color)
	for _, z := range set {
		s.Len(z.ID, 26, "new zones MUST get a ULID")
	}

	// Same name keeps its id and color
	tempoID := set[1].ID
	_, err = s.ExecuteCommand("zones", "set", "Easy=95", "Tempo=135", "Hard=160", "--store", storePath)
	s.Require().NoError(err)
	set = s.listJSON(storePath)
	s.Equal(tempoID, set[1].ID)
	s.Equal(135, set[1].StartRate)
	s.Equal("yellow", set[1].Color)
}

// GOAL: Verify invalid zone sets are rejected and nothing is saved
//
// TEST SCENARIO: Malformed, non-positive and duplicate starts → errors, defaults remain
func (s *ZonesTestSuite) TestSetRejectsInvalidZones() {
	storePath := s.StorePath()

	_, err := s.ExecuteCommand("zones", "set", "Tempo", "--store", storePath)
	s.ErrorIs(err, ErrInvalidZone)

	_, err = s.ExecuteCommand("zones", "set", "Tempo=fast", "--store", storePath)
	s.ErrorIs(err, ErrInvalidZone)

	_, err = s.ExecuteCommand("zones", "set", "Rest=0", "--store", storePath)
	s.ErrorIs(err, zone.ErrInvalidZoneStartBPM)

	_, err = s.ExecuteCommand("zones", "set", "A=120", "B=120", "--store", storePath)
	s.ErrorIs(err, zone.ErrDuplicateStartRate)
	s.Contains(FormatUserError(err), "zones rejected")

	s.Equal(zone.Defaults(), s.listJSON(storePath), "rejected sets MUST NOT be saved")
}

// GOAL: Verify reset restores defaults
//
// TEST SCENARIO: Custom set saved → reset → defaults listed
func (s *ZonesTestSuite) TestReset() {
	storePath := s.StorePath()
	_, err := s.ExecuteCommand("zones", "set", "Only=100", "--store", storePath)
	s.Require().NoError(err)
	s.Require().Len(s.listJSON(storePath), 1)

	_, err = s.ExecuteCommand("zones", "reset", "--store", storePath)

	s.Require().NoError(err)
	s.Equal(zone.Defaults(), s.listJSON(storePath))
}

// GOAL: Verify the SQLite backend is selected by extension
//
// TEST SCENARIO: --store state.db → set then list round-trips through SQLite
func (s *ZonesTestSuite) TestSQLiteStore() {
	storePath := s.ConfigDir + "/state.db"

	_, err := s.ExecuteCommand("zones", "set", "Low=80:blue", "High=150:red", "--store", storePath)
	s.Require().NoError(err)

	set := s.listJSON(storePath)
	s.Require().Len(set, 2)
	s.Equal("High", set[1].Name)
}

func TestZonesTestSuite(t *testing.T) {
	suite.Run(t, new(ZonesTestSuite))
}
