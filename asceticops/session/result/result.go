package result

func NewResult(command string, rowsAffected int64) ResultImp {
	return ResultImp{command: command, rowsAffected: rowsAffected}
}

type ResultImp struct {
	command      string
	rowsAffected int64
}

func (r ResultImp) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// Command is the command tag of the statement, e.g. "UPDATE 1".
func (r ResultImp) Command() string {
	return r.command
}
