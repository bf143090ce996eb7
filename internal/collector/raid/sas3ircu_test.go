package raid

import (
	"errors"
	"testing"
)

const displayFixture = `Avago Technologies SAS3 IR Configuration Utility.
Version 17.00.00.00 (2018.04.02)
Copyright (c) 2009-2018 Avago Technologies. All rights reserved.

Read configuration has been initiated for controller 0
------------------------------------------------------------------------
Controller information
------------------------------------------------------------------------
  Controller type                         : SAS3008
  BIOS version                            : 8.37.00.00
  Firmware version                        : 16.00.01.00
------------------------------------------------------------------------
Physical device information
------------------------------------------------------------------------
Initiator at ID #0

Device is a Hard disk
  Enclosure #                             : 2
  Slot #                                  : 0
  SAS Address                             : 4433221-1-0000-0000
  State                                   : Ready (RDY)
  Size (in MB)/(in sectors)               : 1907729/3907029167
  Manufacturer                            : ATA
  Model Number                            : HGST HUS726T2TALA604
  Firmware Revision                       : V8GN
  Serial No                               : WMC6N0K8XYZ1
  Drive Type                              : SATA_HDD

Device is a Hard disk
  Enclosure #                             : 2
  Slot #                                  : 3
  SAS Address                             : 4433221-1-0300-0000
  State                                   : Optimal (OPT)
  Size (in MB)/(in sectors)               : 457862/937703087
  Manufacturer                            : ATA
  Model Number                            : SAMSUNG MZ7LH480
  Serial No                               : S45NNE0M800001
  Drive Type                              : SATA_SSD

Device is a Enclosure services device
  Enclosure #                             : 2
  Slot #                                  : 8
  State                                   : Standby (SBY)
------------------------------------------------------------------------
`

func TestSas3ircuParseDisplay(t *testing.T) {
	s := NewSas3ircu("/nonexistent", false)

	ctrl, drives, err := s.parseDisplay(0, displayFixture)
	if err != nil {
		t.Fatalf("parseDisplay: %v", err)
	}

	if ctrl.Model != "SAS3008" {
		t.Errorf("controller model = %q", ctrl.Model)
	}

	if len(drives) != 2 {
		t.Fatalf("got %d drives, want 2 (enclosure device excluded)", len(drives))
	}

	first := drives[0]
	if first.Enclosure != 2 || first.Slot != 0 || first.EIDSlt != "2:0" {
		t.Errorf("coordinates = %+v", first)
	}
	if first.State != "Ready" {
		t.Errorf("state = %q, want code suffix trimmed", first.State)
	}
	if first.Serial != "WMC6N0K8XYZ1" {
		t.Errorf("serial = %q", first.Serial)
	}
	if first.Interface != "SATA" || first.Medium != "HDD" {
		t.Errorf("drive type = %q/%q", first.Interface, first.Medium)
	}
	if first.SizeBytes != 2000398843904 {
		t.Errorf("SizeBytes = %d", first.SizeBytes)
	}
	if !first.Unconfigured() {
		t.Error("Ready drive on an HBA should be unconfigured")
	}

	second := drives[1]
	if second.State != "Optimal" || second.Medium != "SSD" {
		t.Errorf("second drive = %+v", second)
	}
}

func TestSas3ircuParseDisplayMissingCoordinates(t *testing.T) {
	s := NewSas3ircu("/nonexistent", false)

	broken := `Device is a Hard disk
  State                                   : Ready (RDY)
  Serial No                               : ABC
`
	_, _, err := s.parseDisplay(0, broken)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestTrimStateCode(t *testing.T) {
	if got := trimStateCode("Ready (RDY)"); got != "Ready" {
		t.Errorf("got %q", got)
	}
	if got := trimStateCode("Ready"); got != "Ready" {
		t.Errorf("got %q", got)
	}
}

func TestSplitDriveType(t *testing.T) {
	intf, medium := splitDriveType("SATA_HDD")
	if intf != "SATA" || medium != "HDD" {
		t.Errorf("got %q/%q", intf, medium)
	}

	intf, medium = splitDriveType("SAS")
	if intf != "SAS" || medium != "" {
		t.Errorf("got %q/%q", intf, medium)
	}
}

func TestSortDrives(t *testing.T) {
	drives := []*PhysicalDrive{
		{Controller: 1, Enclosure: 0, Slot: 0},
		{Controller: 0, Enclosure: 252, Slot: 2},
		{Controller: 0, Enclosure: 252, Slot: 0},
		{Controller: 0, Enclosure: 8, Slot: 5},
	}

	sortDrives(drives)

	want := []string{"/c0/e8/s5", "/c0/e252/s0", "/c0/e252/s2", "/c1/e0/s0"}
	for i, d := range drives {
		if d.Location() != want[i] {
			t.Errorf("position %d = %s, want %s", i, d.Location(), want[i])
		}
	}
}
