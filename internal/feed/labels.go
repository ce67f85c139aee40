package feed

// EffectLabel returns a Hungarian display label for a normalised alert effect.
func EffectLabel(effect string) string {
	switch effect {
	case "NO_SERVICE":
		return "Szünetel"
	case "REDUCED_SERVICE":
		return "Ritkított közlekedés"
	case "SIGNIFICANT_DELAYS":
		return "Jelentős késés"
	case "DETOUR":
		return "Terelés"
	case "ADDITIONAL_SERVICE":
		return "Sűrített közlekedés"
	case "MODIFIED_SERVICE":
		return "Módosított közlekedés"
	case "STOP_MOVED":
		return "Megállóhely áthelyezve"
	case "ACCESSIBILITY_ISSUE":
		return "Akadálymentességi probléma"
	default:
		return "Forgalmi információ"
	}
}

// StatusLabel returns a Hungarian display label for a vehicle stop status.
func StatusLabel(status string) string {
	switch status {
	case "INCOMING_AT":
		return "Megállóhoz érkezik"
	case "STOPPED_AT":
		return "Megállóban áll"
	default:
		return "Úton"
	}
}
