package form

import "github.com/riftworld/worldcore/internal/worldstate/wserr"

// ApplyChangeForm hydrates a live Handle's ObjectReference/Actor attributes
// from a persisted snapshot — used both at startup replay
// (WorldState.LoadChangeForm) and by EspmLazyLoader when a deferred change
// form is replayed once its target finally materializes. The handle must already carry
// ObjectReference data; cf.RecType selects whether Actor attributes are
// also applied.
func ApplyChangeForm(h *Handle, cf ChangeForm) error {
	ref := h.AsObjectReference()
	if ref == nil {
		return wserr.New(wserr.CodeCastFailed, "change form target is not an ObjectReference")
	}

	ref.LocationalData = cf.LocationalData
	ref.BaseId = cf.BaseId
	if cf.BaseType != "" {
		ref.BaseType = cf.BaseType
	}

	if cf.RecType != RecTypeAchr {
		return nil
	}
	actor := h.AsActor()
	if actor == nil {
		return wserr.New(wserr.CodeCastFailed, "ACHR change form applied to a non-Actor handle")
	}

	look, err := LookFromJSON(cf.LookJSON)
	if err != nil {
		return wserr.Wrap(wserr.CodeCastFailed, "decode look", err)
	}
	actor.Look = &look
	if len(cf.EquipmentJSON) > 0 {
		actor.Equipment = &Equipment{Raw: cf.EquipmentJSON}
	}
	actor.IsRaceMenuOpen = cf.IsRaceMenuOpen
	actor.ProfileId = cf.ProfileId
	return nil
}

// Snapshot captures a Handle's current attributes into a ChangeForm, the
// unit WorldState.RequestSave journals and save storage persists.
func Snapshot(h *Handle, id Id, desc Desc) (ChangeForm, error) {
	ref := h.AsObjectReference()
	if ref == nil {
		return ChangeForm{}, wserr.New(wserr.CodeCastFailed, "only ObjectReference/Actor forms have change forms")
	}

	cf := ChangeForm{
		RecType:        RecTypeRefr,
		Desc:           desc,
		FormID:         id,
		LocationalData: ref.LocationalData,
		BaseId:         ref.BaseId,
		BaseType:       ref.BaseType,
	}

	actor := h.AsActor()
	if actor == nil {
		return cf, nil
	}
	cf.RecType = RecTypeAchr
	cf.IsRaceMenuOpen = actor.IsRaceMenuOpen
	cf.ProfileId = actor.ProfileId
	if actor.Look != nil {
		lookJSON, err := LookToJSON(*actor.Look)
		if err != nil {
			return ChangeForm{}, wserr.Wrap(wserr.CodeCastFailed, "encode look", err)
		}
		cf.LookJSON = lookJSON
	}
	if actor.Equipment != nil {
		cf.EquipmentJSON = actor.Equipment.Raw
	}
	return cf, nil
}
