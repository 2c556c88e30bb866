package pipeline

const (
	messageRunCompletedTitle = ":bar_chart: **R&D hours run completed.**"
	messageRunDryRunTitle    = ":test_tube: **R&D hours dry run completed.**"
	messageRunMetaFormat     = "-# run %s (%s)"

	messageTotalsFormat    = "Sessions: %d on %d days, %.2f h total"
	messageSkippedFormat   = "Skipped: %d unparsable timestamps, %d unmapped events, %d sessions without logoff"
	messageAdjustedFormat  = "Adjusted: %d reboots merged, %d midnight splits, %d duplicates removed, %d sessions clipped, %d dropped by daily cap"
	messageConflictsFormat = "Overlaps: %d short, %d long. Calendar conflicts: %d"

	messageUploadedFormat      = "Uploaded: %d calendar events (%d failed)"
	messageVerifyFormat        = ":warning: Read back: %d uploads missing, %d new calendar conflicts"
	messageUploadSkippedDryRun = "-# Dry run, nothing was uploaded."
	messageCalendarUnavailable = ":warning: **Existing calendar events could not be listed, nothing was uploaded.**"

	messageAttachmentTitle = ":page_facing_up: **Daily totals**"
	attachmentContentType  = "text/csv"
)

func attachmentFilename(runID string) string {
	return "rdhours-" + runID + ".csv"
}
