// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package upl

import "strconv"

// Stage is a step of the payload build pipeline.
//
// Stages only move forward, ValidationFailed, Failed and ArtifactFinalized are terminal.
type Stage int

// Pipeline stages, in order.
const (
	StageInit Stage = iota
	StageHeaderParsed
	StageInfoBuilt
	StageParamsBuilt
	StageToolProbed
	StageModuleBuilt
	StageSectionsStripped
	StageSectionsAdded
	StageSectionsAligned
	StageArtifactFinalized
	StageValidationFailed
	StageFailed
)

var stageNames = [...]string{
	StageInit:              "Init",
	StageHeaderParsed:      "HeaderParsed",
	StageInfoBuilt:         "InfoBuilt",
	StageParamsBuilt:       "ParamsBuilt",
	StageToolProbed:        "ToolProbed",
	StageModuleBuilt:       "ModuleBuilt",
	StageSectionsStripped:  "SectionsStripped",
	StageSectionsAdded:     "SectionsAdded",
	StageSectionsAligned:   "SectionsAligned",
	StageArtifactFinalized: "ArtifactFinalized",
	StageValidationFailed:  "ValidationFailed",
	StageFailed:            "Failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Stage(" + strconv.Itoa(int(s)) + ")"
	}

	return stageNames[s]
}

// Terminal returns true if no transition is possible from s.
func (s Stage) Terminal() bool {
	return s == StageArtifactFinalized || s == StageValidationFailed || s == StageFailed
}
