// Package report renders solved refinery models as console tables.
//
// Write prints the overview (sales, operating cost, crude cost, profit), one
// column per crude, a yield matrix per unit ordered by level and the blending
// table. Crudes and pools named "group.member" are folded into one "group"
// row. Values that round to zero at the display precision print as zero, so
// solver noise never shows up as -0.00.
package report
