package grade_export

// splitGradeFeedback separates a recorded grade row into its grade and feedback parts.
// The grade value deliberately carries no feedback fields.
func splitGradeFeedback(row *GradeRow) (*GradeValue, *FeedbackValue) {
	grade := &GradeValue{
		ID:           row.ID,
		UserID:       row.UserID,
		ItemID:       row.ItemID,
		RawGrade:     row.RawGrade,
		FinalGrade:   row.FinalGrade,
		RawGradeMax:  row.RawGradeMax,
		RawGradeMin:  row.RawGradeMin,
		Hidden:       row.Hidden,
		Locked:       row.Locked,
		Overridden:   row.Overridden,
		TimeModified: row.TimeModified,
	}
	feedback := &FeedbackValue{
		Feedback: row.Feedback,
		Format:   row.FeedbackFormat,
	}
	return grade, feedback
}

// emptyGradeFeedback stands in for an item the user has no grade row for.
func emptyGradeFeedback(userID, itemID int64) (*GradeValue, *FeedbackValue) {
	return &GradeValue{UserID: userID, ItemID: itemID},
		&FeedbackValue{Feedback: "", Format: FeedbackFormatMoodle}
}
