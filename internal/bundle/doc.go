/*
Package bundle builds ZIP archives of originals or previews for download and
removes expired archives on a schedule.

Builder writes a deflated archive whose entries are the basenames of the
requested files. Files that no longer exist are skipped with a warning, and
the running size and compression ratio are logged as entries are added.

Janitor deletes archives older than the retention window from the bundle
directory. It sweeps once when started and then on a cron schedule
(github.com/robfig/cron/v3), "@daily" unless configured otherwise.
*/
package bundle
