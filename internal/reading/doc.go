// Package reading defines the logger reading shared by the staging and
// permanent tables, its submission outcome, and the fixed column
// allow-list every dynamic query is built from.
package reading
