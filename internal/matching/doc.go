// Package matching decides whether a file found on disk is a known catalog track.
//
// [CalculateSimilarity] scores normalized strings by edit distance. [Scorer] folds title, artist
// and album similarity together with duration and year closeness into a 0-100 confidence plus a reason.
// [AssociationStepChain] tries strategies in order and stops at the first that resolves a track, and
// [Policy] turns the score into bind-or-suggest.
package matching
